package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DispatchQueue  = "queue"
	DispatchInline = "inline"

	StorageSupabase = "supabase"
	StorageMinio    = "minio"

	ClonePolicyClone = "clone"
	ClonePolicyReuse = "reuse"

	ModeDirect = "direct"
	ModeCover  = "cover"
)

// ErrFallbackUnavailable means neither a bundled fallback asset nor a fallback
// URL is configured. It is a configuration defect and stops startup.
var ErrFallbackUnavailable = errors.New("fallback audio unavailable: no bundled asset and no FALLBACK_LULLABY_MP3_URL")

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Dispatch   DispatchConfig
	Storage    StorageConfig
	ElevenLabs ElevenLabsConfig
	Suno       SunoConfig
	Polling    PollingConfig
	Fallback   FallbackConfig
	Lyrics     LyricsConfig
	HTTP       HTTPConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DispatchConfig struct {
	Mode string // "queue" or "inline"
}

type StorageConfig struct {
	Backend      string // "supabase" or "minio"
	SupabaseURL  string
	SupabaseKey  string
	Bucket       string
	SignedURLTTL time.Duration

	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioUseSSL     bool
	MinioPublicBase string
	MinioRegion     string
}

type ElevenLabsConfig struct {
	APIKey         string
	BaseURL        string
	ModelID        string
	ClonePolicy    string // "clone" or "reuse"
	DefaultVoiceID string
}

type SunoConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	CallbackURL string
	StatusPaths []string
	CoverPaths  []string
	Mode        string // "direct" or "cover"
}

type PollingConfig struct {
	Interval       time.Duration
	MaxAttempts    int
	MaxCheckErrors int
	Rounds         int
}

type FallbackConfig struct {
	AssetPath string
	URL       string
}

type LyricsConfig struct {
	OpenAIKey string
	BaseURL   string
	Model     string
}

type HTTPConfig struct {
	IdempotencyTTL time.Duration
	RateLimit      string // per client, e.g. "20-S"; "off" disables
	CORSOrigins    []string
}

var defaultStatusPaths = []string{
	"/api/v1/generate/record-info?taskId={id}",
	"/api/v1/get/{id}",
	"/api/v1/task/{id}",
	"/api/v1/status/{id}",
	"/api/v1/music/{id}",
	"/get/{id}",
}

var defaultCoverPaths = []string{
	"/api/v1/generate/upload-cover",
	"/api/v1/upload-cover",
	"/api/v1/cover",
	"/api/v1/generate/upload-and-cover",
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 4000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	signedTTL, err := getEnvDuration("SIGNED_URL_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNED_URL_TTL: %w", err)
	}

	pollInterval, err := getEnvDuration("POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}

	pollAttempts, err := getEnvInt("POLL_MAX_ATTEMPTS", 60)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_MAX_ATTEMPTS: %w", err)
	}

	pollErrors, err := getEnvInt("POLL_MAX_CHECK_ERRORS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_MAX_CHECK_ERRORS: %w", err)
	}

	pollRounds, err := getEnvInt("POLL_ROUNDS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_ROUNDS: %w", err)
	}

	idemTTL, err := getEnvDuration("IDEMPOTENCY_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Dispatch: DispatchConfig{
			Mode: getEnv("DISPATCH_MODE", DispatchQueue),
		},
		Storage: StorageConfig{
			Backend:         getEnv("STORAGE_BACKEND", StorageSupabase),
			SupabaseURL:     getEnv("SUPABASE_URL", ""),
			SupabaseKey:     getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
			Bucket:          getEnv("STORAGE_BUCKET", "dodo-audio"),
			SignedURLTTL:    signedTTL,
			MinioEndpoint:   getEnv("MINIO_ENDPOINT", ""),
			MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
			MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
			MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
			MinioPublicBase: getEnv("MINIO_PUBLIC_BASE", ""),
			MinioRegion:     getEnv("MINIO_REGION", "us-east-1"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:         getEnv("ELEVENLABS_API_KEY", ""),
			BaseURL:        getEnv("ELEVENLABS_API_URL", "https://api.elevenlabs.io/v1"),
			ModelID:        getEnv("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
			ClonePolicy:    getEnv("VOICE_CLONE_POLICY", ClonePolicyClone),
			DefaultVoiceID: getEnv("ELEVENLABS_DEFAULT_VOICE_ID", ""),
		},
		Suno: SunoConfig{
			APIKey:      getEnv("SUNO_API_KEY", ""),
			BaseURL:     getEnv("SUNO_API_URL", "https://api.sunoapi.org"),
			Model:       getEnv("SUNO_MODEL", "V4_5ALL"),
			CallbackURL: getEnv("SUNO_CALLBACK_URL", "https://api.example.com/callback"),
			StatusPaths: getEnvList("SUNO_STATUS_PATHS", defaultStatusPaths),
			CoverPaths:  getEnvList("SUNO_COVER_PATHS", defaultCoverPaths),
			Mode:        getEnv("GENERATION_MODE", ModeDirect),
		},
		Polling: PollingConfig{
			Interval:       pollInterval,
			MaxAttempts:    pollAttempts,
			MaxCheckErrors: pollErrors,
			Rounds:         pollRounds,
		},
		Fallback: FallbackConfig{
			AssetPath: getEnv("FALLBACK_ASSET_PATH", "assets/sample-lullaby.mp3"),
			URL:       getEnv("FALLBACK_LULLABY_MP3_URL", ""),
		},
		Lyrics: LyricsConfig{
			OpenAIKey: getEnv("OPENAI_API_KEY", ""),
			BaseURL:   getEnv("OPENAI_BASE_URL", ""),
			Model:     getEnv("LYRICS_MODEL", "gpt-4o-mini"),
		},
		HTTP: HTTPConfig{
			IdempotencyTTL: idemTTL,
			RateLimit:      getEnv("RATE_LIMIT", "20-S"),
			CORSOrigins:    getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks everything that must be present before the service accepts
// traffic, including the fallback audio source.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Storage.Bucket == "" {
		missing = append(missing, "STORAGE_BUCKET")
	}
	switch c.Storage.Backend {
	case StorageSupabase:
		if c.Storage.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Storage.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
	case StorageMinio:
		if c.Storage.MinioEndpoint == "" {
			missing = append(missing, "MINIO_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.ElevenLabs.APIKey == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}
	if c.Suno.APIKey == "" {
		missing = append(missing, "SUNO_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	if c.Dispatch.Mode != DispatchQueue && c.Dispatch.Mode != DispatchInline {
		return fmt.Errorf("unknown DISPATCH_MODE %q", c.Dispatch.Mode)
	}
	if c.Suno.Mode != ModeDirect && c.Suno.Mode != ModeCover {
		return fmt.Errorf("unknown GENERATION_MODE %q", c.Suno.Mode)
	}
	if c.ElevenLabs.ClonePolicy != ClonePolicyClone && c.ElevenLabs.ClonePolicy != ClonePolicyReuse {
		return fmt.Errorf("unknown VOICE_CLONE_POLICY %q", c.ElevenLabs.ClonePolicy)
	}
	if len(c.Suno.StatusPaths) == 0 {
		return errors.New("SUNO_STATUS_PATHS must list at least one path")
	}
	if c.Polling.Interval <= 0 || c.Polling.MaxAttempts <= 0 || c.Polling.MaxCheckErrors <= 0 || c.Polling.Rounds <= 0 {
		return errors.New("polling interval, attempts, check errors and rounds must be positive")
	}

	return c.Fallback.Validate()
}

// Validate reports ErrFallbackUnavailable when the bundled asset is missing and
// no URL is configured.
func (f FallbackConfig) Validate() error {
	if f.URL != "" {
		return nil
	}
	if f.AssetPath != "" {
		if st, err := os.Stat(f.AssetPath); err == nil && !st.IsDir() {
			return nil
		}
	}
	return ErrFallbackUnavailable
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
