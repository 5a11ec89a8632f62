// Package generation orchestrates the voice profile and lullaby pipelines.
package generation

import (
	"errors"
	"fmt"
)

// ErrValidation marks bad client input. Handlers answer 400.
var ErrValidation = errors.New("validation error")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// errStillPending is returned when every polling round ended with the job
// still running at the provider.
var errStillPending = errors.New("provider job still pending after all polling rounds")
