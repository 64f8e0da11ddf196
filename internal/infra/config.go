package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderKind selects the generation backend. The set is closed; LoadConfig
// rejects anything else.
type ProviderKind string

const (
	ProviderFal  ProviderKind = "fal-ai"
	ProviderN8N  ProviderKind = "n8n"
	ProviderMock ProviderKind = "mock"
)

// StorageBackend selects where archived media is written.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageGCS   StorageBackend = "gcs"
)

// EventsBackend selects how ad events reach subscribers.
type EventsBackend string

const (
	EventsMemory   EventsBackend = "memory"
	EventsPostgres EventsBackend = "postgres"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	GeoIPDBPath string

	GenerationProvider ProviderKind
	VideoProvider      ProviderKind
	ProviderTimeout    time.Duration

	FalAPIKey     string
	FalBaseURL    string
	FalImageModel string
	FalVideoModel string

	N8NWebhookURL   string
	CallbackBaseURL string
	// CallbackSecret guards POST /ads/n8n-callback. When empty every callback
	// is accepted; only acceptable for local development.
	CallbackSecret string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	StorageBackend   StorageBackend
	StoragePath      string
	StorageBaseURL   string
	GCSBucket        string
	GCSPublicBaseURL string

	EventsBackend EventsBackend

	WorkerEnabled     bool
	WorkerConcurrency int
	QueueMaxAttempts  int
	QueueBackoff      time.Duration
	QueueRetention    time.Duration

	DedupWindow time.Duration

	ImageCreditCost       int
	VideoCreditCost       int
	VideoCreditsPerSecond int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		ProviderTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),

		FalAPIKey:     os.Getenv("FAL_API_KEY"),
		FalBaseURL:    getEnv("FAL_BASE_URL", "https://fal.run"),
		FalImageModel: getEnv("FAL_IMAGE_MODEL", "fal-ai/flux/dev"),
		FalVideoModel: getEnv("FAL_VIDEO_MODEL", "fal-ai/kling-video/v1/standard/text-to-video"),

		N8NWebhookURL:   os.Getenv("N8N_WEBHOOK_URL"),
		CallbackBaseURL: getEnv("CALLBACK_BASE_URL", "http://localhost:"+port),
		CallbackSecret:  os.Getenv("CALLBACK_SECRET"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:   getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		GCSPublicBaseURL: getEnv("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"),

		WorkerEnabled:     getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 5),
		QueueMaxAttempts:  getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
		QueueBackoff:      time.Millisecond * time.Duration(getEnvInt("QUEUE_BACKOFF_MS", 2000)),
		QueueRetention:    time.Hour * time.Duration(getEnvInt("QUEUE_RETENTION_HOURS", 24)),

		DedupWindow: time.Millisecond * time.Duration(getEnvInt("DEDUP_WINDOW_MS", 5000)),

		ImageCreditCost:       getEnvInt("IMAGE_CREDIT_COST", 1),
		VideoCreditCost:       getEnvInt("VIDEO_CREDIT_COST", 1),
		VideoCreditsPerSecond: getEnvInt("VIDEO_CREDITS_PER_SECOND", 1),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	provider, err := ParseProviderKind(getEnv("GENERATION_PROVIDER", string(ProviderMock)))
	if err != nil {
		return nil, err
	}
	cfg.GenerationProvider = provider

	video, err := ParseProviderKind(getEnv("VIDEO_PROVIDER", string(provider)))
	if err != nil {
		return nil, err
	}
	cfg.VideoProvider = video

	switch backend := StorageBackend(strings.ToLower(getEnv("STORAGE_BACKEND", string(StorageLocal)))); backend {
	case StorageLocal, StorageGCS:
		cfg.StorageBackend = backend
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND %q is not supported", backend)
	}
	if cfg.StorageBackend == StorageGCS && cfg.GCSBucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND=gcs")
	}

	switch backend := EventsBackend(strings.ToLower(getEnv("EVENTS_BACKEND", string(EventsMemory)))); backend {
	case EventsMemory, EventsPostgres:
		cfg.EventsBackend = backend
	default:
		return nil, fmt.Errorf("EVENTS_BACKEND %q is not supported", backend)
	}

	for _, kind := range []ProviderKind{cfg.GenerationProvider, cfg.VideoProvider} {
		if kind == ProviderN8N && cfg.N8NWebhookURL == "" {
			return nil, fmt.Errorf("N8N_WEBHOOK_URL is required for the n8n provider")
		}
	}

	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.QueueMaxAttempts <= 0 {
		cfg.QueueMaxAttempts = 1
	}

	return cfg, nil
}

// ParseProviderKind maps a configuration tag onto a known provider.
func ParseProviderKind(tag string) (ProviderKind, error) {
	switch kind := ProviderKind(strings.ToLower(strings.TrimSpace(tag))); kind {
	case ProviderFal, ProviderN8N, ProviderMock:
		return kind, nil
	default:
		return "", fmt.Errorf("generation provider %q is not supported", tag)
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
