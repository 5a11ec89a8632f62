package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/dodo")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-key")
	t.Setenv("ELEVENLABS_API_KEY", "xi-key")
	t.Setenv("SUNO_API_KEY", "suno-key")
	t.Setenv("FALLBACK_LULLABY_MP3_URL", "https://cdn.example.com/lullaby.mp3")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:4000", cfg.Addr())
	assert.Equal(t, DispatchQueue, cfg.Dispatch.Mode)
	assert.Equal(t, "dodo-audio", cfg.Storage.Bucket)
	assert.Equal(t, 7*24*time.Hour, cfg.Storage.SignedURLTTL)
	assert.Equal(t, 5*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 60, cfg.Polling.MaxAttempts)
	assert.Equal(t, 10, cfg.Polling.MaxCheckErrors)
	assert.Equal(t, ModeDirect, cfg.Suno.Mode)
	assert.Equal(t, "/api/v1/generate/record-info?taskId={id}", cfg.Suno.StatusPaths[0])
	assert.NoError(t, cfg.Validate())
}

func TestLoadStatusPathsOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("SUNO_STATUS_PATHS", " /v2/jobs/{id} , ,/v1/jobs/{id}")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/v2/jobs/{id}", "/v1/jobs/{id}"}, cfg.Suno.StatusPaths)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateMissing(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "SUPABASE_URL", "ELEVENLABS_API_KEY", "SUNO_API_KEY"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			cfg, err := Load()
			require.NoError(t, err)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidateUnknownModes(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH_MODE", "cron")

	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "DISPATCH_MODE")
}

func TestFallbackValidate(t *testing.T) {
	dir := t.TempDir()
	asset := filepath.Join(dir, "sample-lullaby.mp3")
	require.NoError(t, os.WriteFile(asset, []byte("ID3"), 0o600))

	assert.NoError(t, FallbackConfig{AssetPath: asset}.Validate())
	assert.NoError(t, FallbackConfig{URL: "https://cdn.example.com/a.mp3"}.Validate())
	assert.ErrorIs(t, FallbackConfig{AssetPath: filepath.Join(dir, "missing.mp3")}.Validate(), ErrFallbackUnavailable)
	assert.ErrorIs(t, FallbackConfig{AssetPath: dir}.Validate(), ErrFallbackUnavailable)
}
