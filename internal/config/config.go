// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case and map 1:1 to SUDEA_* environment variables.
// - New(ctx) returns a Config filled with defaults; Load layers file and env on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"time"
)

// Supported driver names.
const (
	ArchiveDriverS3    = "s3"
	ArchiveDriverAzure = "azure"

	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"

	SessionDriverJWT   = "jwt"
	SessionDriverRedis = "redis"
	SessionDriverSQL   = "sql"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// PublicBaseURL is the externally reachable base URL of this service. It is
	// embedded in generated uploader scripts.
	PublicBaseURL string `koanf:"public_base_url"`

	// MaxUploadBytes caps the size of a multipart submission.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// ScratchDir holds uploaded images while a submission is in flight.
	ScratchDir string `koanf:"scratch_dir"`

	// Detector process settings, resolved once at startup.
	DetectorCommand   string        `koanf:"detector_command"`
	DetectorArgs      []string      `koanf:"detector_args"`
	DetectorImageFlag string        `koanf:"detector_image_flag"`
	DetectorModelFlag string        `koanf:"detector_model_flag"`
	DetectorModelPath string        `koanf:"detector_model_path"`
	DetectorTimeout   time.Duration `koanf:"detector_timeout"`

	// Archive (object storage) settings.
	ArchiveDriver        string `koanf:"archive_driver"`
	ArchiveBucket        string `koanf:"archive_bucket"`
	ArchiveRegion        string `koanf:"archive_region"`
	ArchiveEndpoint      string `koanf:"archive_endpoint"`
	ArchivePathStyle     bool   `koanf:"archive_path_style"`
	ArchivePublicBaseURL string `koanf:"archive_public_base_url"`
	ArchiveAccountName   string `koanf:"archive_account_name"`
	ArchiveAccountKey    string `koanf:"archive_account_key"`
	ArchiveContainer     string `koanf:"archive_container"`
	ArchiveServiceURL    string `koanf:"archive_service_url"`

	// Signed browser upload settings.
	SignCloudName string `koanf:"sign_cloud_name"`
	SignAPIKey    string `koanf:"sign_api_key"`
	SignAPISecret string `koanf:"sign_api_secret"`

	// Metadata database settings.
	DatabaseDriver string `koanf:"database_driver"`
	DatabaseDSN    string `koanf:"database_dsn"`

	// Interactive session settings.
	SessionDriver      string        `koanf:"session_driver"`
	SessionCookie      string        `koanf:"session_cookie"`
	SessionSecret      string        `koanf:"session_secret"`
	SessionTTL         time.Duration `koanf:"session_ttl"`
	SessionRedisAddr   string        `koanf:"session_redis_addr"`
	SessionRedisPass   string        `koanf:"session_redis_password"`
	SessionRedisDB     int           `koanf:"session_redis_db"`
	SessionRedisPrefix string        `koanf:"session_redis_prefix"`

	// SMTP transport settings.
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`
	SMTPImplicit bool   `koanf:"smtp_implicit_tls"`

	// Notification policy and outbox settings.
	NotifyAdmin     string `koanf:"notify_admin"`
	NotifySubject   string `koanf:"notify_subject"`
	NotifyWorkers   int    `koanf:"notify_workers"`
	NotifyQueueSize int    `koanf:"notify_queue_size"`

	// AnomalyLabel is the class counted by the profile anomaly total.
	AnomalyLabel string `koanf:"anomaly_label"`

	// Prometheus settings. MetricsLabels is set from the YAML file only.
	MetricsEnabled         bool              `koanf:"metrics_enabled"`
	MetricsNamespace       string            `koanf:"metrics_namespace"`
	MetricsRefreshInterval time.Duration     `koanf:"metrics_refresh_interval"`
	MetricsLatencyBuckets  []float64         `koanf:"metrics_latency_buckets"`
	MetricsLabels          map[string]string `koanf:"metrics_labels"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		PublicBaseURL:  "http://localhost:9080",
		MaxUploadBytes: 20 << 20,
		ScratchDir:     "tmp/uploads",

		DetectorCommand:   "python3",
		DetectorArgs:      []string{"scripts/detect_fire.py"},
		DetectorImageFlag: "--image_path",
		DetectorModelFlag: "--model_path",
		DetectorModelPath: "scripts/models/YOLOv10-FireSmoke-M.pt",
		DetectorTimeout:   2 * time.Minute,

		ArchiveDriver:    ArchiveDriverS3,
		ArchiveRegion:    "us-east-1",
		ArchiveContainer: "uploads",

		DatabaseDriver: DatabaseDriverSQLite,
		DatabaseDSN:    "sudea.db",

		SessionDriver:      SessionDriverJWT,
		SessionCookie:      "sudea.session_token",
		SessionTTL:         30 * 24 * time.Hour,
		SessionRedisAddr:   "localhost:6379",
		SessionRedisPrefix: "sudea:session:",

		SMTPPort: 465,

		NotifySubject:   "Alerta: anomalía detectada en tu imagen",
		NotifyWorkers:   2,
		NotifyQueueSize: 256,

		AnomalyLabel: "fire",

		MetricsEnabled:         true,
		MetricsNamespace:       "sudea",
		MetricsRefreshInterval: 10 * time.Second,
	}
}
