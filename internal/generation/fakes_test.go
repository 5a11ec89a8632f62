package generation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dodoapp/lullaby-backend/internal/fallback"
	"github.com/dodoapp/lullaby-backend/internal/metrics"
	"github.com/dodoapp/lullaby-backend/internal/models"
	"github.com/dodoapp/lullaby-backend/internal/poller"
	"github.com/dodoapp/lullaby-backend/internal/provider/suno"
	"github.com/dodoapp/lullaby-backend/internal/storage"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

type fakeMusic struct {
	mu         sync.Mutex
	submitFn   func(ctx context.Context, req suno.GenerationRequest) (string, error)
	coverFn    func(ctx context.Context, req suno.CoverRequest) (string, error)
	pollFn     func(ctx context.Context, jobID string) (poller.Check, error)
	downloadFn func(ctx context.Context, url string) ([]byte, error)

	submits  []suno.GenerationRequest
	covers   []suno.CoverRequest
	polls    int
	polledID string
}

func (f *fakeMusic) SubmitGeneration(ctx context.Context, req suno.GenerationRequest) (string, error) {
	f.mu.Lock()
	f.submits = append(f.submits, req)
	f.mu.Unlock()
	if f.submitFn == nil {
		return "task-1", nil
	}
	return f.submitFn(ctx, req)
}

func (f *fakeMusic) SubmitCover(ctx context.Context, req suno.CoverRequest) (string, error) {
	f.mu.Lock()
	f.covers = append(f.covers, req)
	f.mu.Unlock()
	if f.coverFn == nil {
		return "cover-1", nil
	}
	return f.coverFn(ctx, req)
}

func (f *fakeMusic) PollJob(ctx context.Context, jobID string) (poller.Check, error) {
	f.mu.Lock()
	f.polls++
	f.polledID = jobID
	f.mu.Unlock()
	if f.pollFn == nil {
		return poller.Check{Status: poller.StatusComplete, AudioURL: "https://cdn.suno.test/" + jobID + ".mp3"}, nil
	}
	return f.pollFn(ctx, jobID)
}

func (f *fakeMusic) Download(ctx context.Context, url string) ([]byte, error) {
	if f.downloadFn == nil {
		return []byte("ID3primary"), nil
	}
	return f.downloadFn(ctx, url)
}

func (f *fakeMusic) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fakeFallback struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeFallback) Fetch(context.Context) (*fallback.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fallback.Audio{Data: []byte("ID3fallback"), ContentType: "audio/mpeg", Source: fallback.SourceAsset}, nil
}

type fakeCloner struct {
	mu      sync.Mutex
	fn      func(ctx context.Context, name string, sources []string) (string, error)
	sources [][]string
}

func (f *fakeCloner) CloneVoice(ctx context.Context, name string, sources []string) (string, error) {
	f.mu.Lock()
	f.sources = append(f.sources, append([]string(nil), sources...))
	f.mu.Unlock()
	if f.fn == nil {
		return "voice-cloned", nil
	}
	return f.fn(ctx, name, sources)
}

type fakeSynth struct {
	voiceID string
	text    string
}

func (f *fakeSynth) Synthesize(_ context.Context, voiceID, text string) ([]byte, error) {
	f.voiceID, f.text = voiceID, text
	return []byte("vocals"), nil
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (r *recordingScheduler) Schedule(_ context.Context, id uuid.UUID) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return nil
}

type harness struct {
	store    *store.Memory
	blobs    *storage.Memory
	music    *fakeMusic
	fallback *fakeFallback
	gen      *Generator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemory(),
		blobs:    storage.NewMemory("mem://blobs"),
		music:    &fakeMusic{},
		fallback: &fakeFallback{},
	}
	p := poller.New(time.Second, 5, 3)
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	h.gen = NewGenerator(GeneratorDeps{
		Store:        h.store,
		Blobs:        h.blobs,
		Strategy:     DirectStrategy{Music: h.music},
		Music:        h.music,
		Fallback:     h.fallback,
		Poller:       p,
		PollRounds:   2,
		SignedURLTTL: time.Hour,
		Metrics:      metrics.New(prometheus.NewRegistry()),
	})
	return h
}

// seed creates a child, a ready voice profile carrying identity (none when
// empty), a generating lullaby and its ledger entry.
func (h *harness) seed(t *testing.T, identity string) *models.Lullaby {
	t.Helper()
	ctx := context.Background()

	child, err := h.store.InsertChild(ctx, store.NewChild{Name: "Léa"})
	require.NoError(t, err)

	vp, err := h.store.InsertVoiceProfile(ctx)
	require.NoError(t, err)
	upd := store.VoiceProfileUpdate{Status: models.VoiceStatusReady}
	if identity != "" {
		upd.ExternalVoiceID = &identity
	}
	require.NoError(t, h.store.UpdateVoiceProfile(ctx, vp.ID, upd))

	l, err := h.store.InsertLullaby(ctx, store.NewLullaby{
		ChildID:         child.ID,
		VoiceProfileID:  vp.ID,
		Title:           "Lullaby - soft",
		Style:           models.StyleSoft,
		DurationMinutes: 5,
		LanguageCode:    "fr",
	})
	require.NoError(t, err)
	_, err = h.store.InsertJob(ctx, l.ID)
	require.NoError(t, err)
	return l
}

func (h *harness) lullaby(t *testing.T, id uuid.UUID) *models.Lullaby {
	t.Helper()
	l, err := h.store.GetLullaby(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (h *harness) job(t *testing.T, lullabyID uuid.UUID) *models.GenerationJob {
	t.Helper()
	j, err := h.store.GetJobByLullaby(context.Background(), lullabyID)
	require.NoError(t, err)
	return j
}
