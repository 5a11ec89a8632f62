package models

import (
	"time"

	"github.com/google/uuid"
)

type Child struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	AgeMonths *int      `json:"ageMonths,omitempty" db:"age_months"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
