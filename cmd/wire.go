package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/sudea/internal/adapters/archive"
	"github.com/okian/sudea/internal/adapters/auth"
	"github.com/okian/sudea/internal/adapters/detector"
	"github.com/okian/sudea/internal/adapters/mq/queue"
	"github.com/okian/sudea/internal/adapters/mq/worker"
	"github.com/okian/sudea/internal/adapters/notify"
	"github.com/okian/sudea/internal/adapters/repository"
	"github.com/okian/sudea/internal/adapters/scratch"
	"github.com/okian/sudea/internal/adapters/session"
	service "github.com/okian/sudea/internal/app"
	"github.com/okian/sudea/internal/config"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// components are the long-lived handles built from configuration.
type components struct {
	svc     *service.Service
	store   *repository.GormStore
	closers []func() error
}

// Close releases every handle in reverse order of acquisition.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires the service from cfg. On error, anything already opened is
// closed before returning.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (c *components, err error) {
	c = &components{}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	store, err := repository.Open(ctx, repository.Config{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseDSN},
		repository.WithLogger(log.Named("repository")))
	if err != nil {
		return c, err
	}
	c.store = store
	c.closers = append(c.closers, store.Close)
	if err := store.Migrate(ctx); err != nil {
		return c, err
	}

	sessions, err := session.New(ctx, sessionConfig(cfg), session.Dependencies{SQL: store})
	if err != nil {
		return c, err
	}
	if closer, ok := sessions.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}

	authLog := log.Named("auth")
	sessionResolver := auth.NewSessionResolver(sessions)

	scratchStore, err := scratch.New(cfg.ScratchDir)
	if err != nil {
		return c, err
	}

	runner, err := detector.New(detectorConfig(cfg), detector.WithLogger(log.Named("detector")))
	if err != nil {
		return c, err
	}

	uploader, err := archive.New(ctx, archiveConfig(cfg), archive.WithLogger(log.Named("archive")))
	if err != nil {
		return c, err
	}

	deps := service.Dependencies{
		PipelineAuth:    auth.NewChain(authLog, auth.NewBearerResolver(store), sessionResolver),
		InteractiveAuth: auth.NewChain(authLog, sessionResolver),
		Scratch:         scratchStore,
		Detector:        runner,
		Uploader:        uploader,
		Repository:      store,
		Signer:          archive.NewSigner(cfg.SignCloudName, cfg.SignAPIKey, cfg.SignAPISecret),
	}
	if err := wireNotifications(cfg, log, &deps); err != nil {
		return c, err
	}

	svc, err := service.New(deps,
		service.WithLogger(log.Named("service")),
		service.WithAnomalyLabel(cfg.AnomalyLabel),
		service.WithUploadURL(uploadURL(cfg.PublicBaseURL)),
	)
	if err != nil {
		return c, err
	}
	c.svc = svc
	return c, nil
}

// wireNotifications installs the notifier. Without an SMTP host alerts are
// disabled; with workers they go through the in-memory outbox.
func wireNotifications(cfg *config.Config, log logger.Logger, deps *service.Dependencies) error {
	if cfg.SMTPHost == "" {
		log.Warn(context.Background(), "smtp_host is empty; alert emails are disabled")
		return nil
	}
	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		From:        cfg.SMTPFrom,
		ImplicitTLS: cfg.SMTPImplicit,
	})
	if err != nil {
		return err
	}

	opts := []notify.Option{
		notify.WithAdmin(cfg.NotifyAdmin),
		notify.WithSubject(cfg.NotifySubject),
		notify.WithLogger(log.Named("notify")),
	}
	if cfg.NotifyWorkers > 0 {
		outbox := queue.NewInMemoryQueue(queue.WithCapacity(cfg.NotifyQueueSize))
		pool := worker.NewPool(cfg.NotifyWorkers, outbox, sender, worker.WithLogger(log.Named("worker")))
		opts = append(opts, notify.WithOutbox(outbox))
		deps.Background = pool
		deps.Outbox = outbox
	}
	deps.Notifier = notify.NewDispatcher(sender, opts...)
	return nil
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Driver: cfg.SessionDriver,
		TTL:    cfg.SessionTTL,
		Secret: cfg.SessionSecret,
		Redis: session.RedisConfig{
			Addr:     cfg.SessionRedisAddr,
			Password: cfg.SessionRedisPass,
			DB:       cfg.SessionRedisDB,
			Prefix:   cfg.SessionRedisPrefix,
		},
	}
}

func detectorConfig(cfg *config.Config) detector.Config {
	return detector.Config{
		Command:   cfg.DetectorCommand,
		Args:      cfg.DetectorArgs,
		ImageFlag: cfg.DetectorImageFlag,
		ModelFlag: cfg.DetectorModelFlag,
		ModelPath: cfg.DetectorModelPath,
		Timeout:   cfg.DetectorTimeout,
	}
}

func archiveConfig(cfg *config.Config) archive.Config {
	return archive.Config{
		Driver:        cfg.ArchiveDriver,
		PublicBaseURL: cfg.ArchivePublicBaseURL,
		Bucket:        cfg.ArchiveBucket,
		Region:        cfg.ArchiveRegion,
		Endpoint:      cfg.ArchiveEndpoint,
		PathStyle:     cfg.ArchivePathStyle,
		AccountName:   cfg.ArchiveAccountName,
		AccountKey:    cfg.ArchiveAccountKey,
		Container:     cfg.ArchiveContainer,
		ServiceURL:    cfg.ArchiveServiceURL,
	}
}

// uploadURL is the pipeline endpoint embedded in generated uploader scripts.
func uploadURL(base string) string {
	return fmt.Sprintf("%s/api/detect", strings.TrimRight(base, "/"))
}

func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
		metrics.WithHistogramBuckets(cfg.MetricsLatencyBuckets),
		metrics.WithCustomLabels(cfg.MetricsLabels),
	}
}
