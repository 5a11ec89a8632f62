package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/metrics"
	"github.com/dodoapp/lullaby-backend/internal/models"
	"github.com/dodoapp/lullaby-backend/internal/provider"
	"github.com/dodoapp/lullaby-backend/internal/storage"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

func newVoiceService(policy, defaultID string) (*VoiceService, *store.Memory, *storage.Memory, *fakeCloner) {
	st := store.NewMemory()
	blobs := storage.NewMemory("mem://blobs")
	cloner := &fakeCloner{}
	svc := NewVoiceService(st, blobs, cloner, config.ElevenLabsConfig{ClonePolicy: policy, DefaultVoiceID: defaultID}, metrics.New(prometheus.NewRegistry()))
	return svc, st, blobs, cloner
}

func twoSamples() []VoiceSample {
	return []VoiceSample{
		{Filename: "one.m4a", ContentType: "audio/m4a", Data: []byte("sample-one")},
		{Filename: "two.m4a", ContentType: "audio/m4a", Data: []byte("sample-two")},
	}
}

func TestCreateProfileClones(t *testing.T) {
	svc, _, blobs, cloner := newVoiceService(config.ClonePolicyClone, "")

	vp, err := svc.CreateProfile(context.Background(), twoSamples())
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusReady, vp.Status)
	assert.Equal(t, "voice-cloned", vp.Identity())

	for i, want := range []string{"sample-one", "sample-two"} {
		data, _, ok := blobs.Object(storage.VoiceSamplePath(vp.ID.String(), i+1))
		require.True(t, ok)
		assert.Equal(t, want, string(data))
	}

	require.Len(t, cloner.sources, 1)
	require.Len(t, cloner.sources[0], 2)
	for _, p := range cloner.sources[0] {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "temp sample %s should be removed", p)
	}
}

func TestCreateProfileCloneFailureIsDegradedReady(t *testing.T) {
	svc, _, _, cloner := newVoiceService(config.ClonePolicyClone, "")
	cloner.fn = func(context.Context, string, []string) (string, error) {
		return "", provider.Rejected("elevenlabs", 400, "voice_limit_reached")
	}

	vp, err := svc.CreateProfile(context.Background(), twoSamples())
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusReady, vp.Status)
	assert.Nil(t, vp.ExternalVoiceID)
}

func TestCreateProfileStorageFailureIsError(t *testing.T) {
	svc, st, blobs, cloner := newVoiceService(config.ClonePolicyClone, "")
	blobs.SetFailUploads(true)

	_, err := svc.CreateProfile(context.Background(), twoSamples())
	require.ErrorIs(t, err, storage.ErrStorage)

	profiles, _ := st.ListVoiceProfiles(context.Background())
	require.Len(t, profiles, 1)
	assert.Equal(t, models.VoiceStatusError, profiles[0].Status)
	assert.Empty(t, cloner.sources)
}

// failingSecondUpload stores the first sample and rejects the rest.
type failingSecondUpload struct {
	*storage.Memory
	uploads int
}

func (f *failingSecondUpload) Upload(ctx context.Context, path string, data io.Reader, contentType string) error {
	f.uploads++
	if f.uploads > 1 {
		return fmt.Errorf("%w: bucket unavailable", storage.ErrStorage)
	}
	return f.Memory.Upload(ctx, path, data, contentType)
}

func TestCreateProfileStorageFailureRemovesStoredSamples(t *testing.T) {
	st := store.NewMemory()
	blobs := &failingSecondUpload{Memory: storage.NewMemory("mem://blobs")}
	svc := NewVoiceService(st, blobs, &fakeCloner{}, config.ElevenLabsConfig{ClonePolicy: config.ClonePolicyClone}, metrics.New(prometheus.NewRegistry()))

	_, err := svc.CreateProfile(context.Background(), twoSamples())
	require.ErrorIs(t, err, storage.ErrStorage)

	assert.Equal(t, 2, blobs.uploads)
	assert.Empty(t, blobs.Paths())
	profiles, _ := st.ListVoiceProfiles(context.Background())
	require.Len(t, profiles, 1)
	assert.Equal(t, models.VoiceStatusError, profiles[0].Status)
}

func TestCreateProfileReusePolicy(t *testing.T) {
	t.Run("configured identity", func(t *testing.T) {
		svc, _, _, cloner := newVoiceService(config.ClonePolicyReuse, "voice-default")
		vp, err := svc.CreateProfile(context.Background(), twoSamples())
		require.NoError(t, err)
		assert.Equal(t, "voice-default", vp.Identity())
		assert.Empty(t, cloner.sources)
	})

	t.Run("latest identity, cloning once", func(t *testing.T) {
		svc, _, _, cloner := newVoiceService(config.ClonePolicyReuse, "")

		first, err := svc.CreateProfile(context.Background(), twoSamples())
		require.NoError(t, err)
		assert.Equal(t, "voice-cloned", first.Identity())

		cloner.fn = func(context.Context, string, []string) (string, error) {
			return "", errors.New("must not clone again")
		}
		second, err := svc.CreateProfile(context.Background(), twoSamples())
		require.NoError(t, err)
		assert.Equal(t, "voice-cloned", second.Identity())
		assert.Len(t, cloner.sources, 1)
	})
}

func TestCreateProfileValidation(t *testing.T) {
	svc, st, _, _ := newVoiceService(config.ClonePolicyClone, "")

	_, err := svc.CreateProfile(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)

	four := append(twoSamples(), twoSamples()...)
	_, err = svc.CreateProfile(context.Background(), four)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateProfile(context.Background(), []VoiceSample{{Filename: "empty.m4a"}})
	assert.ErrorIs(t, err, ErrValidation)

	profiles, _ := st.ListVoiceProfiles(context.Background())
	assert.Empty(t, profiles)
}

func TestCreateProfileSurvivesCancelledRequest(t *testing.T) {
	svc, _, _, _ := newVoiceService(config.ClonePolicyClone, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vp, err := svc.CreateProfile(ctx, twoSamples())
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusReady, vp.Status)
}
