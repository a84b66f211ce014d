package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// RenderConfig controls rasterization and document assembly.
type RenderConfig struct {
	DPI             int
	OutputDPI       int
	PreviewPages    int
	Workers         int
	DocumentTimeout time.Duration
	MaxUploadBytes  int64
	// MaxSyncDocuments bounds concurrent synchronous previews.
	MaxSyncDocuments int
}

// WorkerConfig defines queued job processing.
type WorkerConfig struct {
	Enabled     bool
	Concurrency int
	PollTimeout time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL  string
	Stream    string
	Group     string
	DLQStream string
	StatusTTL time.Duration
}

// StorageConfig selects where sources and results are kept.
type StorageConfig struct {
	Backend       string // "local"|"s3"
	LocalDir      string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	EncryptionKey string
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Render  RenderConfig
	Worker  WorkerConfig
	Queue   QueueConfig
	Storage StorageConfig
	HTTP    HTTPConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/inkboost.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_inkboost",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Render = RenderConfig{
		DPI:              parseInt(getEnv("RENDER_DPI", "300"), 300),
		OutputDPI:        parseInt(getEnv("OUTPUT_DPI", ""), 0),
		PreviewPages:     parseInt(getEnv("PREVIEW_PAGES", "5"), 5),
		Workers:          parseInt(getEnv("ENHANCE_WORKERS", "4"), 4),
		DocumentTimeout:  parseDuration(getEnv("DOCUMENT_TIMEOUT", "5m"), 5*time.Minute),
		MaxUploadBytes:   int64(parseInt(getEnv("MAX_UPLOAD_BYTES", ""), 45<<20)),
		MaxSyncDocuments: parseInt(getEnv("MAX_SYNC_DOCUMENTS", "2"), 2),
	}
	if cfg.Render.OutputDPI <= 0 {
		cfg.Render.OutputDPI = cfg.Render.DPI
	}
	if cfg.Render.PreviewPages <= 0 {
		cfg.Render.PreviewPages = 5
	}

	cfg.Worker = WorkerConfig{
		Enabled:     parseBool(getEnv("WORKER_ENABLED", "true")),
		Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
		PollTimeout: parseDuration(getEnv("WORKER_POLL_TIMEOUT", "5s"), 5*time.Second),
	}

	cfg.Queue = QueueConfig{
		RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:    getEnv("QUEUE_STREAM", "jobs:enhance"),
		Group:     getEnv("QUEUE_GROUP", "workers:enhance"),
		DLQStream: getEnv("QUEUE_DLQ_STREAM", "jobs:enhance:dlq"),
		StatusTTL: parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
	}

	cfg.Storage = StorageConfig{
		Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		LocalDir:      getEnv("STORAGE_DIR", "data"),
		S3Bucket:      getEnv("S3_BUCKET", ""),
		S3Region:      getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3AccessKey:   getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		EncryptionKey: getEnv("STORAGE_ENCRYPTION_KEY", ""),
	}

	cfg.HTTP = HTTPConfig{
		Addr:            getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second),
		WriteTimeout:    parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "6m"), 6*time.Minute),
		ShutdownTimeout: parseDuration(getEnv("HTTP_SHUTDOWN_TIMEOUT", "15s"), 15*time.Second),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
