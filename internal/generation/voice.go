package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/config"
	"github.com/dodoapp/lullaby-backend/internal/metrics"
	"github.com/dodoapp/lullaby-backend/internal/models"
	"github.com/dodoapp/lullaby-backend/internal/storage"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

const MaxVoiceSamples = 3

type VoiceSample struct {
	Filename    string
	ContentType string
	Data        []byte
}

type VoiceService struct {
	store          store.Store
	blobs          storage.Storage
	cloner         VoiceCloner
	clonePolicy    string
	defaultVoiceID string
	metrics        *metrics.Metrics
}

func NewVoiceService(st store.Store, blobs storage.Storage, cloner VoiceCloner, cfg config.ElevenLabsConfig, m *metrics.Metrics) *VoiceService {
	return &VoiceService{
		store:          st,
		blobs:          blobs,
		cloner:         cloner,
		clonePolicy:    cfg.ClonePolicy,
		defaultVoiceID: cfg.DefaultVoiceID,
		metrics:        m,
	}
}

// CreateProfile stores the samples and attempts a single clone. A failed
// clone still yields a ready profile without identity; only storage
// failures end in "error".
func (s *VoiceService) CreateProfile(ctx context.Context, samples []VoiceSample) (*models.VoiceProfile, error) {
	if len(samples) == 0 {
		return nil, invalid("at least one audio sample is required")
	}
	if len(samples) > MaxVoiceSamples {
		return nil, invalid("at most %d audio samples are accepted", MaxVoiceSamples)
	}
	for i, smp := range samples {
		if len(smp.Data) == 0 {
			return nil, invalid("audio sample %d is empty", i+1)
		}
	}

	// The pipeline finishes even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	profile, err := s.store.InsertVoiceProfile(ctx)
	if err != nil {
		s.metrics.VoiceProfileFinished(models.VoiceStatusError)
		return nil, fmt.Errorf("create voice profile: %w", err)
	}
	log := slog.With("voice_profile_id", profile.ID)

	tmpDir, err := os.MkdirTemp("", "dodo-voice-"+profile.ID.String())
	if err != nil {
		return nil, s.fail(ctx, profile.ID, nil, fmt.Errorf("create temp dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			log.Warn("failed to remove temp samples", "error", err)
		}
	}()

	sources := make([]string, 0, len(samples))
	stored := make([]string, 0, len(samples))
	for i, smp := range samples {
		n := i + 1
		tmp := filepath.Join(tmpDir, fmt.Sprintf("source-%d%s", n, sampleExt(smp.Filename)))
		if err := os.WriteFile(tmp, smp.Data, 0o600); err != nil {
			return nil, s.fail(ctx, profile.ID, stored, fmt.Errorf("write temp sample: %w", err))
		}
		sources = append(sources, tmp)

		path := storage.VoiceSamplePath(profile.ID.String(), n)
		if err := s.blobs.Upload(ctx, path, bytes.NewReader(smp.Data), contentTypeOr(smp.ContentType, "audio/m4a")); err != nil {
			return nil, s.fail(ctx, profile.ID, stored, fmt.Errorf("store sample %d: %w", n, err))
		}
		stored = append(stored, path)
	}

	identity, result := s.resolveIdentity(ctx, profile.ID, sources)

	upd := store.VoiceProfileUpdate{Status: models.VoiceStatusReady}
	if identity != "" {
		upd.ExternalVoiceID = &identity
	}
	if err := s.store.UpdateVoiceProfile(ctx, profile.ID, upd); err != nil {
		return nil, s.fail(ctx, profile.ID, stored, fmt.Errorf("mark voice profile ready: %w", err))
	}
	s.metrics.VoiceProfileFinished(result)
	log.Info("voice profile ready", "result", result, "has_identity", identity != "")

	out, err := s.store.GetVoiceProfile(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("reload voice profile: %w", err)
	}
	return out, nil
}

func (s *VoiceService) Get(ctx context.Context, id uuid.UUID) (*models.VoiceProfile, error) {
	return s.store.GetVoiceProfile(ctx, id)
}

// resolveIdentity returns the voice identity to attach and a metrics label.
func (s *VoiceService) resolveIdentity(ctx context.Context, profileID uuid.UUID, sources []string) (string, string) {
	log := slog.With("voice_profile_id", profileID)

	if s.clonePolicy == config.ClonePolicyReuse {
		if s.defaultVoiceID != "" {
			log.Info("reusing configured voice identity")
			return s.defaultVoiceID, "ready_reused"
		}
		id, err := s.store.LatestVoiceIdentity(ctx)
		if err == nil {
			log.Info("reusing existing voice identity")
			return id, "ready_reused"
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("lookup of existing voice identity failed", "error", err)
		}
	}

	id, err := s.cloner.CloneVoice(ctx, "DODO Voice "+profileID.String()[:8], sources)
	if err != nil {
		log.Warn("voice cloning failed, profile stays usable without identity", "error", err)
		return "", "ready_degraded"
	}
	return id, models.VoiceStatusReady
}

// fail marks the profile as error and deletes the samples already stored
// for it.
func (s *VoiceService) fail(ctx context.Context, id uuid.UUID, stored []string, cause error) error {
	slog.Error("voice profile pipeline failed", "voice_profile_id", id, "error", cause)
	for _, path := range stored {
		if err := s.blobs.Delete(ctx, path); err != nil {
			slog.Warn("failed to delete voice sample", "voice_profile_id", id, "path", path, "error", err)
		}
	}
	if err := s.store.UpdateVoiceProfile(ctx, id, store.VoiceProfileUpdate{Status: models.VoiceStatusError}); err != nil {
		slog.Error("failed to mark voice profile as error", "voice_profile_id", id, "error", err)
	}
	s.metrics.VoiceProfileFinished(models.VoiceStatusError)
	return cause
}

func sampleExt(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" || len(ext) > 5 {
		return ".m4a"
	}
	return ext
}

func contentTypeOr(ct, def string) string {
	if ct == "" || ct == "application/octet-stream" {
		return def
	}
	return ct
}
