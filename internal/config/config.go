package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPPort          = "8080"
	defaultTemporalAddress   = "localhost:7233"
	defaultTemporalNS        = "default"
	defaultTaskQueue         = "pcb-mes-task-queue"
	defaultMinioEndpoint     = "localhost:9000"
	defaultMinioBucket       = "cam-attachments"
	defaultLogLevel          = "info"
	defaultRateLimitRequests = 600
	defaultTransitionTimeout = 30
)

type Config struct {
	HTTPPort              string `yaml:"http_port"`
	PostgresDSN           string `yaml:"postgres_dsn"`
	TemporalAddress       string `yaml:"temporal_address"`
	TemporalNamespace     string `yaml:"temporal_namespace"`
	TemporalTaskQueue     string `yaml:"temporal_task_queue"`
	MinioEndpoint         string `yaml:"minio_endpoint"`
	MinioAccessKey        string `yaml:"minio_access_key"`
	MinioSecretKey        string `yaml:"minio_secret_key"`
	MinioBucket           string `yaml:"minio_bucket"`
	MinioUseSSL           bool   `yaml:"minio_use_ssl"`
	IntakeWorkflowPrefix  string `yaml:"intake_workflow_prefix"`
	AdvanceWorkflowPrefix string `yaml:"advance_workflow_prefix"`
	AllowedUploadBytes    int64  `yaml:"allowed_upload_bytes"`
	LogLevel              string `yaml:"log_level"`
	JWTSecret             string `yaml:"jwt_secret"`
	RateLimitPerMinute    int    `yaml:"rate_limit_per_minute"`
	TransitionTimeoutSec  int    `yaml:"transition_timeout_sec"`
}

func defaults() Config {
	return Config{
		HTTPPort:              defaultHTTPPort,
		TemporalAddress:       defaultTemporalAddress,
		TemporalNamespace:     defaultTemporalNS,
		TemporalTaskQueue:     defaultTaskQueue,
		MinioEndpoint:         defaultMinioEndpoint,
		MinioBucket:           defaultMinioBucket,
		IntakeWorkflowPrefix:  "attachment-intake",
		AdvanceWorkflowPrefix: "stage-transition",
		AllowedUploadBytes:    50 * 1024 * 1024,
		LogLevel:              defaultLogLevel,
		RateLimitPerMinute:    defaultRateLimitRequests,
		TransitionTimeoutSec:  defaultTransitionTimeout,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPPort = getenv("HTTP_PORT", cfg.HTTPPort)
	cfg.PostgresDSN = getenv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.TemporalAddress = getenv("TEMPORAL_ADDRESS", cfg.TemporalAddress)
	cfg.TemporalNamespace = getenv("TEMPORAL_NAMESPACE", cfg.TemporalNamespace)
	cfg.TemporalTaskQueue = getenv("TEMPORAL_TASK_QUEUE", cfg.TemporalTaskQueue)
	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getenv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getenv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getenv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = getenvBool("MINIO_USE_SSL", cfg.MinioUseSSL)
	cfg.IntakeWorkflowPrefix = getenv("INTAKE_WORKFLOW_PREFIX", cfg.IntakeWorkflowPrefix)
	cfg.AdvanceWorkflowPrefix = getenv("ADVANCE_WORKFLOW_PREFIX", cfg.AdvanceWorkflowPrefix)
	cfg.AllowedUploadBytes = int64(getenvInt("MAX_UPLOAD_BYTES", int(cfg.AllowedUploadBytes)))
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.RateLimitPerMinute = getenvInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.TransitionTimeoutSec = getenvInt("TRANSITION_TIMEOUT_SEC", cfg.TransitionTimeoutSec)

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}

	return cfg, nil
}

func (c Config) TransitionTimeout() time.Duration {
	return time.Duration(c.TransitionTimeoutSec) * time.Second
}

func mergeFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
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
