package models

import (
	"time"

	"github.com/google/uuid"
)

// VoiceProfile is created in "processing" and moved exactly once to "ready"
// or "error". ExternalVoiceID is nil when cloning never succeeded.
type VoiceProfile struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Status          string    `json:"status" db:"status"`
	ExternalVoiceID *string   `json:"externalVoiceId,omitempty" db:"external_voice_id"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

const (
	VoiceStatusProcessing = "processing"
	VoiceStatusReady      = "ready"
	VoiceStatusError      = "error"
)

// Identity returns the cloned voice id, or "" for a degraded profile.
func (v *VoiceProfile) Identity() string {
	if v == nil || v.ExternalVoiceID == nil {
		return ""
	}
	return *v.ExternalVoiceID
}
