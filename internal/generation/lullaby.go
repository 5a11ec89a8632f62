package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/metrics"
	"github.com/dodoapp/lullaby-backend/internal/models"
	"github.com/dodoapp/lullaby-backend/internal/provider/suno"
	"github.com/dodoapp/lullaby-backend/internal/store"
)

// Scheduler hands a lullaby to background execution. Schedule must not block
// on the pipeline itself.
type Scheduler interface {
	Schedule(ctx context.Context, lullabyID uuid.UUID) error
}

type CreateLullabyInput struct {
	ChildID         uuid.UUID
	VoiceProfileID  uuid.UUID
	Style           string
	DurationMinutes float64
	LanguageCode    string
}

type LullabyService struct {
	store     store.Store
	scheduler Scheduler
	// backup runs the pipeline when scheduler refuses the work.
	backup  Scheduler
	metrics *metrics.Metrics
}

func NewLullabyService(st store.Store, scheduler, backup Scheduler, m *metrics.Metrics) *LullabyService {
	return &LullabyService{store: st, scheduler: scheduler, backup: backup, metrics: m}
}

func (in CreateLullabyInput) validate() error {
	var problems []string
	if in.ChildID == uuid.Nil {
		problems = append(problems, "childId is required")
	}
	if in.VoiceProfileID == uuid.Nil {
		problems = append(problems, "voiceProfileId is required")
	}
	if !models.ValidStyle(in.Style) {
		problems = append(problems, "style must be one of "+strings.Join(models.Styles, ", "))
	}
	if !(in.DurationMinutes > 0) {
		problems = append(problems, "durationMinutes must be greater than 0")
	}
	if strings.TrimSpace(in.LanguageCode) == "" {
		problems = append(problems, "languageCode is required")
	}
	if len(problems) > 0 {
		return invalid("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Create validates the request, records the lullaby as generating and
// schedules its pipeline. The returned record is the one the caller sees
// before any generation work happens.
func (s *LullabyService) Create(ctx context.Context, in CreateLullabyInput) (*models.Lullaby, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetChild(ctx, in.ChildID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("child %s does not exist", in.ChildID)
		}
		return nil, fmt.Errorf("load child: %w", err)
	}
	if _, err := s.store.GetVoiceProfile(ctx, in.VoiceProfileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("voice profile %s does not exist", in.VoiceProfileID)
		}
		return nil, fmt.Errorf("load voice profile: %w", err)
	}

	l, err := s.store.InsertLullaby(ctx, store.NewLullaby{
		ChildID:         in.ChildID,
		VoiceProfileID:  in.VoiceProfileID,
		Title:           suno.Title(in.Style),
		Style:           in.Style,
		DurationMinutes: in.DurationMinutes,
		LanguageCode:    strings.TrimSpace(in.LanguageCode),
	})
	if err != nil {
		return nil, fmt.Errorf("create lullaby: %w", err)
	}
	log := slog.With("lullaby_id", l.ID)

	// Work detached from the request from here on.
	bg := context.WithoutCancel(ctx)

	if _, err := s.store.InsertJob(bg, l.ID); err != nil {
		s.abandon(bg, l.ID, fmt.Errorf("create generation job: %w", err))
		return nil, fmt.Errorf("create generation job: %w", err)
	}

	if err := s.scheduler.Schedule(bg, l.ID); err != nil {
		log.Warn("scheduling failed, running in process", "error", err)
		if s.backup == nil {
			s.abandon(bg, l.ID, err)
			return nil, fmt.Errorf("schedule generation: %w", err)
		}
		if err := s.backup.Schedule(bg, l.ID); err != nil {
			s.abandon(bg, l.ID, err)
			return nil, fmt.Errorf("schedule generation: %w", err)
		}
	}

	log.Info("lullaby requested", "style", l.Style, "duration_minutes", l.DurationMinutes, "language", l.LanguageCode)
	return l, nil
}

func (s *LullabyService) Get(ctx context.Context, id uuid.UUID) (*models.Lullaby, error) {
	return s.store.GetLullaby(ctx, id)
}

func (s *LullabyService) List(ctx context.Context) ([]models.Lullaby, error) {
	return s.store.ListLullabies(ctx)
}

// abandon marks a lullaby failed when it could not be handed to a pipeline.
func (s *LullabyService) abandon(ctx context.Context, id uuid.UUID, cause error) {
	slog.Error("lullaby could not be scheduled", "lullaby_id", id, "error", cause)
	if err := s.store.UpdateLullaby(ctx, id, store.LullabyUpdate{Status: models.LullabyStatusFailed}); err != nil {
		slog.Error("failed to mark lullaby as failed", "lullaby_id", id, "error", err)
	}
	s.metrics.LullabyFinished(models.LullabyStatusFailed, "none")
}
