package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/sudea/internal/adapters/http/api"
	"github.com/okian/sudea/internal/adapters/http/site"
	"github.com/okian/sudea/internal/adapters/http/swagger"
	"github.com/okian/sudea/internal/adapters/notify"
	"github.com/okian/sudea/internal/config"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// HTTP server timeout constants. The write timeout covers a full detector
// run plus upload and an inline alert, see serverWriteTimeout.
const (
	readTimeout               = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	writeTimeoutSlack         = 30 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// Use stderr since the logger may not be available yet.
		_, _ = os.Stderr.WriteString("sudea: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if _, err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitWith(cfg.LogFormat, os.Stdout); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(metricsOptions(cfg)...)

	c, err := build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error(ctx, "closing resources failed", logger.Error(err))
		}
	}()

	if err := c.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, c),
		ReadTimeout:       readTimeout,
		WriteTimeout:      serverWriteTimeout(cfg),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx, metrics.RefreshInterval())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := c.svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("service stop: %w", err))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// newMux registers every HTTP route. The landing page claims "/", so the
// more specific API and docs patterns are matched first.
// serverWriteTimeout is unbounded when the detector is, otherwise it leaves
// room for the upload and an inline alert after the detector deadline.
func serverWriteTimeout(cfg *config.Config) time.Duration {
	if cfg.DetectorTimeout <= 0 {
		return 0
	}
	return cfg.DetectorTimeout + writeTimeoutSlack + notify.DefaultSendTimeout
}

func newMux(ctx context.Context, cfg *config.Config, c *components) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(c.svc, c.svc,
		api.WithSessionCookie(cfg.SessionCookie),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithLogger(logger.NamedOrDiscard("api")),
	).Register(ctx, mux)
	site.Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes runtime gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
