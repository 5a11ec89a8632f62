package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationJob is the durable ledger entry for one lullaby pipeline run. It
// outlives process restarts so unfinished pipelines can be resumed.
type GenerationJob struct {
	ID            uuid.UUID `json:"id" db:"id"`
	LullabyID     uuid.UUID `json:"lullaby_id" db:"lullaby_id"`
	State         string    `json:"state" db:"state"`
	ProviderJobID *string   `json:"provider_job_id,omitempty" db:"provider_job_id"`
	Attempts      int       `json:"attempts" db:"attempts"`
	LastError     *string   `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

const (
	JobStateQueued  = "queued"
	JobStateRunning = "running"
	JobStateDone    = "done"
)
