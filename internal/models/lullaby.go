package models

import (
	"time"

	"github.com/google/uuid"
)

type Lullaby struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ChildID         uuid.UUID `json:"childId" db:"child_id"`
	VoiceProfileID  uuid.UUID `json:"voiceProfileId" db:"voice_profile_id"`
	Title           string    `json:"title" db:"title"`
	Style           string    `json:"style" db:"style"`
	DurationMinutes float64   `json:"durationMinutes" db:"duration_minutes"`
	LanguageCode    string    `json:"languageCode" db:"language_code"`
	Status          string    `json:"status" db:"status"`
	AudioURL        *string   `json:"audioUrl,omitempty" db:"audio_url"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

const (
	LullabyStatusGenerating = "generating"
	LullabyStatusReady      = "ready"
	LullabyStatusFailed     = "failed"
)

const (
	StyleSoft    = "soft"
	StyleJoyful  = "joyful"
	StyleSpoken  = "spoken"
	StyleMelodic = "melodic"
)

var Styles = []string{StyleSoft, StyleJoyful, StyleSpoken, StyleMelodic}

var styleLabels = map[string]string{
	StyleSoft:    "soft and slow",
	StyleJoyful:  "joyful and reassuring",
	StyleSpoken:  "more spoken than sung",
	StyleMelodic: "more melodic",
}

// StyleLabel is the human phrasing of a style used in prompts.
func StyleLabel(s string) string {
	if l, ok := styleLabels[s]; ok {
		return l
	}
	return s
}

func ValidStyle(s string) bool {
	for _, v := range Styles {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may happen.
func (l *Lullaby) IsTerminal() bool {
	return l.Status == LullabyStatusReady || l.Status == LullabyStatusFailed
}
