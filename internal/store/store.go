// Package store is the record half of the entity store adapter. The
// orchestrator only talks to the Store interface so the concrete database can
// be swapped (Postgres in production, memory in tests and local runs).
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dodoapp/lullaby-backend/internal/models"
)

var (
	// ErrNotFound is returned when a record with the given id does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrTerminal is returned when an update targets a record that already
	// left its initial state. Terminal states are sticky.
	ErrTerminal = errors.New("record already in a terminal state")
)

type NewChild struct {
	Name      string
	AgeMonths *int
}

type NewLullaby struct {
	ChildID         uuid.UUID
	VoiceProfileID  uuid.UUID
	Title           string
	Style           string
	DurationMinutes float64
	LanguageCode    string
}

// VoiceProfileUpdate moves a profile out of "processing".
type VoiceProfileUpdate struct {
	Status          string
	ExternalVoiceID *string
}

// LullabyUpdate moves a lullaby out of "generating". AudioURL must be set for
// "ready" and nil for "failed".
type LullabyUpdate struct {
	Status   string
	AudioURL *string
}

type JobUpdate struct {
	State         string
	ProviderJobID *string
	LastError     *string
	// IncrementAttempts bumps the attempts counter, used when a run starts.
	IncrementAttempts bool
}

type Store interface {
	InsertChild(ctx context.Context, c NewChild) (*models.Child, error)
	GetChild(ctx context.Context, id uuid.UUID) (*models.Child, error)
	ListChildren(ctx context.Context) ([]models.Child, error)

	InsertVoiceProfile(ctx context.Context) (*models.VoiceProfile, error)
	GetVoiceProfile(ctx context.Context, id uuid.UUID) (*models.VoiceProfile, error)
	UpdateVoiceProfile(ctx context.Context, id uuid.UUID, upd VoiceProfileUpdate) error
	ListVoiceProfiles(ctx context.Context) ([]models.VoiceProfile, error)
	// LatestVoiceIdentity returns the newest external voice id of a ready
	// profile, or ErrNotFound.
	LatestVoiceIdentity(ctx context.Context) (string, error)

	InsertLullaby(ctx context.Context, l NewLullaby) (*models.Lullaby, error)
	GetLullaby(ctx context.Context, id uuid.UUID) (*models.Lullaby, error)
	UpdateLullaby(ctx context.Context, id uuid.UUID, upd LullabyUpdate) error
	// ListLullabies returns lullabies newest first.
	ListLullabies(ctx context.Context) ([]models.Lullaby, error)

	InsertJob(ctx context.Context, lullabyID uuid.UUID) (*models.GenerationJob, error)
	GetJobByLullaby(ctx context.Context, lullabyID uuid.UUID) (*models.GenerationJob, error)
	UpdateJob(ctx context.Context, id uuid.UUID, upd JobUpdate) error
	ListUnfinishedJobs(ctx context.Context) ([]models.GenerationJob, error)
}

func validLullabyUpdate(upd LullabyUpdate) error {
	switch upd.Status {
	case models.LullabyStatusReady:
		if upd.AudioURL == nil || *upd.AudioURL == "" {
			return errors.New("ready lullaby requires an audio url")
		}
	case models.LullabyStatusFailed:
		if upd.AudioURL != nil {
			return errors.New("failed lullaby cannot carry an audio url")
		}
	default:
		return errors.New("invalid lullaby status transition: " + upd.Status)
	}
	return nil
}

func validVoiceUpdate(upd VoiceProfileUpdate) error {
	if upd.Status != models.VoiceStatusReady && upd.Status != models.VoiceStatusError {
		return errors.New("invalid voice profile status transition: " + upd.Status)
	}
	return nil
}
