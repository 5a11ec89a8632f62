// Package storage is the blob half of the entity store adapter.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dodoapp/lullaby-backend/internal/config"
)

var (
	// ErrStorage wraps every blob backend failure.
	ErrStorage = errors.New("storage error")
	// ErrSigningUnsupported is returned by backends that cannot sign URLs.
	ErrSigningUnsupported = errors.New("signed urls not supported")
	ErrObjectNotFound     = errors.New("object not found")
)

// Storage is bound to a single bucket. Uploads overwrite existing objects.
type Storage interface {
	Upload(ctx context.Context, path string, data io.Reader, contentType string) error
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	PublicURL(path string) string
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

func VoiceSamplePath(profileID string, n int) string {
	return fmt.Sprintf("voices/%s/source-%d", profileID, n)
}

func LullabyPath(lullabyID string) string {
	return "lullabies/" + lullabyID
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case config.StorageSupabase:
		return NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket), nil
	case config.StorageMinio:
		return NewMinioStorage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ResolveURL prefers a signed URL and falls back to the public one.
func ResolveURL(ctx context.Context, s Storage, path string, ttl time.Duration) (url string, signed bool) {
	u, err := s.SignedURL(ctx, path, ttl)
	if err == nil && u != "" {
		return u, true
	}
	return s.PublicURL(path), false
}

func wrap(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStorage, op, path, err)
}
