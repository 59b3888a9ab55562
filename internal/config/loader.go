package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "SUDEA_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if SUDEA_CONFIG is set
//  3. env (prefix SUDEA_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// SUDEA_DETECTOR_TIMEOUT -> detector_timeout. Underscores are preserved to
	// match the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	conf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, conf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ScratchDir == "":
		return fmt.Errorf("%w: scratch_dir must not be empty", ErrInvalidConfig)
	case c.DetectorCommand == "":
		return fmt.Errorf("%w: detector_command must not be empty", ErrInvalidConfig)
	case c.DetectorModelPath == "":
		return fmt.Errorf("%w: detector_model_path must not be empty", ErrInvalidConfig)
	case c.DetectorTimeout < 0:
		return fmt.Errorf("%w: detector_timeout must not be negative", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	case c.NotifyWorkers < 0:
		return fmt.Errorf("%w: notify_workers must not be negative", ErrInvalidConfig)
	case c.NotifyWorkers > 0 && c.NotifyQueueSize <= 0:
		return fmt.Errorf("%w: notify_queue_size must be positive when workers are enabled", ErrInvalidConfig)
	case c.AnomalyLabel == "":
		return fmt.Errorf("%w: anomaly_label must not be empty", ErrInvalidConfig)
	case c.MetricsRefreshInterval <= 0:
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	case !slices.IsSorted(c.MetricsLatencyBuckets):
		return fmt.Errorf("%w: metrics_latency_buckets must be ascending", ErrInvalidConfig)
	}

	if !slices.Contains([]string{ArchiveDriverS3, ArchiveDriverAzure}, c.ArchiveDriver) {
		return fmt.Errorf("%w: unknown archive_driver %q", ErrInvalidConfig, c.ArchiveDriver)
	}
	if !slices.Contains([]string{DatabaseDriverSQLite, DatabaseDriverPostgres}, c.DatabaseDriver) {
		return fmt.Errorf("%w: unknown database_driver %q", ErrInvalidConfig, c.DatabaseDriver)
	}
	if !slices.Contains([]string{SessionDriverJWT, SessionDriverRedis, SessionDriverSQL}, c.SessionDriver) {
		return fmt.Errorf("%w: unknown session_driver %q", ErrInvalidConfig, c.SessionDriver)
	}
	if c.SessionDriver == SessionDriverJWT && c.SessionSecret == "" {
		return fmt.Errorf("%w: session_secret is required for the jwt session driver", ErrInvalidConfig)
	}
	return nil
}
