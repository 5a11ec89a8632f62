// Package provider holds the error taxonomy shared by the external provider
// gateways.
package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the provider could not be reached (network, DNS,
	// timeout, 5xx).
	ErrUnavailable = errors.New("provider unavailable")
	// ErrRejected means the provider answered with a structured error such as
	// an exhausted quota or unusable audio.
	ErrRejected = errors.New("provider rejected request")
	// ErrInvalidRequest means the request was refused locally before any call.
	ErrInvalidRequest = errors.New("invalid provider request")
)

// Error carries the raw provider message for diagnostics. It matches one of
// the sentinels above through errors.Is.
type Error struct {
	Provider   string
	Kind       error
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Provider, e.Kind, msg)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

func Unavailable(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: ErrUnavailable, Err: err}
}

func Rejected(provider string, status int, message string) *Error {
	return &Error{Provider: provider, Kind: ErrRejected, StatusCode: status, Message: message}
}

func Invalid(provider, message string) *Error {
	return &Error{Provider: provider, Kind: ErrInvalidRequest, Message: message}
}

// FromStatus classifies a non-2xx HTTP answer: 5xx and 429 are treated as
// unavailability, other 4xx as rejections.
func FromStatus(provider string, status int, message string) *Error {
	if status >= 500 || status == 429 {
		return &Error{Provider: provider, Kind: ErrUnavailable, StatusCode: status, Message: message}
	}
	return Rejected(provider, status, message)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "other"
	}
}
