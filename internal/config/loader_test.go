package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/sudea/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		_ = os.Setenv("SUDEA_SESSION_SECRET", "s3cret")
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DetectorTimeout, convey.ShouldEqual, 2*time.Minute)
				convey.So(cfg.NotifyWorkers, convey.ShouldEqual, 2)
				convey.So(cfg.SessionSecret, convey.ShouldEqual, "s3cret")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SUDEA_ADDR", ":8080")
			_ = os.Setenv("SUDEA_DETECTOR_COMMAND", "/usr/local/bin/detector")
			_ = os.Setenv("SUDEA_DETECTOR_ARGS", "--fp16,--quiet")
			_ = os.Setenv("SUDEA_DETECTOR_TIMEOUT", "45s")
			_ = os.Setenv("SUDEA_ARCHIVE_PATH_STYLE", "true")
			_ = os.Setenv("SUDEA_NOTIFY_WORKERS", "0")
			_ = os.Setenv("SUDEA_MAX_UPLOAD_BYTES", "1048576")
			_ = os.Setenv("SUDEA_METRICS_ENABLED", "false")
			_ = os.Setenv("SUDEA_METRICS_REFRESH_INTERVAL", "5s")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DetectorCommand, convey.ShouldEqual, "/usr/local/bin/detector")
				convey.So(cfg.DetectorArgs, convey.ShouldResemble, []string{"--fp16", "--quiet"})
				convey.So(cfg.DetectorTimeout, convey.ShouldEqual, 45*time.Second)
				convey.So(cfg.ArchivePathStyle, convey.ShouldBeTrue)
				convey.So(cfg.NotifyWorkers, convey.ShouldEqual, 0)
				convey.So(cfg.MaxUploadBytes, convey.ShouldEqual, 1048576)
				convey.So(cfg.MetricsEnabled, convey.ShouldBeFalse)
				convey.So(cfg.MetricsRefreshInterval, convey.ShouldEqual, 5*time.Second)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
# local development
addr: ":9090"
scratch_dir: /var/tmp/sudea
detector_command: ./bin/detect
detector_image_flag: ""
detector_model_flag: ""
detector_timeout: 30s
archive_driver: azure
archive_container: images
metrics_namespace: fleet
metrics_latency_buckets: [10, 100, 1000]
metrics_labels:
  site: north
database_driver: postgres
database_dsn: postgres://sudea@localhost/sudea
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SUDEA_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load values from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ScratchDir, convey.ShouldEqual, "/var/tmp/sudea")
				convey.So(cfg.DetectorCommand, convey.ShouldEqual, "./bin/detect")
				convey.So(cfg.DetectorImageFlag, convey.ShouldEqual, "")
				convey.So(cfg.DetectorTimeout, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.ArchiveDriver, convey.ShouldEqual, config.ArchiveDriverAzure)
				convey.So(cfg.ArchiveContainer, convey.ShouldEqual, "images")
				convey.So(cfg.DatabaseDriver, convey.ShouldEqual, config.DatabaseDriverPostgres)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "fleet")
				convey.So(cfg.MetricsLatencyBuckets, convey.ShouldResemble, []float64{10, 100, 1000})
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"site": "north"})
				convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			})

			convey.Convey("And env vars still take precedence over the file", func() {
				_ = os.Setenv("SUDEA_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("SUDEA_CONFIG", "/nonexistent/sudea.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			tmpFile := createTempConfigFile("addr: [unterminated\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SUDEA_CONFIG", tmpFile)

			_, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the YAML file blanks the address", func() {
			tmpFile := createTempConfigFile("addr: \"\"\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SUDEA_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return validation error for empty addr", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"SUDEA_CONFIG",
		"SUDEA_ADDR",
		"SUDEA_SESSION_SECRET",
		"SUDEA_DETECTOR_COMMAND",
		"SUDEA_DETECTOR_ARGS",
		"SUDEA_DETECTOR_TIMEOUT",
		"SUDEA_ARCHIVE_PATH_STYLE",
		"SUDEA_NOTIFY_WORKERS",
		"SUDEA_MAX_UPLOAD_BYTES",
		"SUDEA_METRICS_ENABLED",
		"SUDEA_METRICS_REFRESH_INTERVAL",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "sudea-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
