package config

import (
	"fmt"
	log "log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string
	SQLitePath  string // local runs only, default: contentgen.db

	// Cache
	RedisAddr string

	// Providers
	OpenAIAPIKey    string
	GeminiAPIKey    string
	ReplicateAPIKey string

	// Models
	DefaultTextModel  string // default: gpt-4o-mini
	DefaultImageModel string // default: black-forest-labs/flux-dev
	ModelsFile        string // optional YAML catalog

	// Site context embedded in title prompts
	SiteName        string
	SiteDescription string

	// Media
	MediaDir     string // default: ./media
	MediaBaseURL string // default: /media
	S3Endpoint   string
	S3Region     string // default: us-east-1
	S3Bucket     string // S3 storage is used when set
	S3AccessKey  string
	S3SecretKey  string
	S3PublicURL  string

	// Provider timeouts
	TextTimeout        time.Duration // default: 300s
	ImageSubmitTimeout time.Duration // default: 65s
	PollRequestTimeout time.Duration // default: 15s
	PollInterval       time.Duration // default: 2s
	PollDeadline       time.Duration // default: 60s
	DownloadTimeout    time.Duration // default: 60s

	// Observability
	OTELExporterType     string // "stdout", "otlp" or "none"
	OTELExporterEndpoint string // default: "localhost:4317"
	LogLevel             string // debug, info, warn, error
	LogFormat            string // json or text

	// Rate Limiting
	DefaultRateLimitRPM int64 // generation requests per minute, default: 60

	RunSeed bool
}

// Load reads the server configuration. POSTGRES_DSN and REDIS_ADDR are
// required.
func Load() (*Config, error) {
	cfg, err := LoadLocal()
	if err != nil {
		return nil, err
	}

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

// LoadLocal reads the configuration without requiring the server backends.
func LoadLocal() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		SQLitePath:           getEnv("SQLITE_PATH", "contentgen.db"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		ReplicateAPIKey:      os.Getenv("REPLICATE_API_KEY"),
		DefaultTextModel:     getEnv("DEFAULT_TEXT_MODEL", "gpt-4o-mini"),
		DefaultImageModel:    getEnv("DEFAULT_IMAGE_MODEL", "black-forest-labs/flux-dev"),
		ModelsFile:           os.Getenv("MODELS_FILE"),
		SiteName:             os.Getenv("SITE_NAME"),
		SiteDescription:      os.Getenv("SITE_DESCRIPTION"),
		MediaDir:             getEnv("MEDIA_DIR", "media"),
		MediaBaseURL:         getEnv("MEDIA_BASE_URL", "/media"),
		S3Endpoint:           os.Getenv("S3_ENDPOINT"),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3AccessKey:          os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:          os.Getenv("S3_SECRET_KEY"),
		S3PublicURL:          os.Getenv("S3_PUBLIC_URL"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		RunSeed:              os.Getenv("RUN_SEED") == "true",
	}

	var err error
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"TEXT_TIMEOUT", 300 * time.Second, &cfg.TextTimeout},
		{"IMAGE_SUBMIT_TIMEOUT", 65 * time.Second, &cfg.ImageSubmitTimeout},
		{"POLL_REQUEST_TIMEOUT", 15 * time.Second, &cfg.PollRequestTimeout},
		{"POLL_INTERVAL", 2 * time.Second, &cfg.PollInterval},
		{"POLL_DEADLINE", 60 * time.Second, &cfg.PollDeadline},
		{"DOWNLOAD_TIMEOUT", 60 * time.Second, &cfg.DownloadTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	rpmStr := getEnv("DEFAULT_RATE_LIMIT_RPM", "60")
	rpm, err := strconv.ParseInt(rpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_RPM: %w", err)
	}
	cfg.DefaultRateLimitRPM = rpm

	if cfg.S3Bucket != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return nil, fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_BUCKET is set")
	}

	return cfg, nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *log.Logger {
	var level log.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = log.LevelDebug
	case "warn":
		level = log.LevelWarn
	case "error":
		level = log.LevelError
	default:
		level = log.LevelInfo
	}

	opts := &log.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return log.New(log.NewTextHandler(os.Stderr, opts))
	}
	return log.New(log.NewJSONHandler(os.Stderr, opts))
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
