package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/sudea/internal/config"
	"github.com/okian/sudea/internal/submitter"
	"github.com/okian/sudea/pkg/logger"
)

func main() {
	// Pick up SUDEA_TOKEN and friends from .env before flag defaults are read.
	if _, err := config.LoadDotEnv(); err != nil {
		_, _ = os.Stderr.WriteString("Failed to read .env: " + err.Error() + "\n")
	}

	var (
		baseURL  = flag.String("url", envOr("SUDEA_SUBMIT_URL", "http://localhost:9080"), "Base URL of the service")
		token    = flag.String("token", os.Getenv("SUDEA_TOKEN"), "Script bearer token")
		dir      = flag.String("dir", "", "Folder to submit or watch")
		watch    = flag.Bool("watch", false, "Watch the folder for new images")
		workers  = flag.Int("workers", submitter.DefaultWorkers, "Concurrent uploads in batch mode")
		timeout  = flag.Duration("timeout", submitter.DefaultTimeout, "Per-request timeout")
		attempts = flag.Int("attempts", submitter.DefaultAttempts, "Open attempts for a locked file")
		format   = flag.String("log-format", logger.FormatText, "Log format: text or json")
		logFile  = flag.String("log", "", "Also write logs to this file")
		verbose  = flag.Bool("verbose", false, "Log every response")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		submitter.ShowHelp(os.Stdout)
		return
	}

	os.Exit(run(submitter.Config{
		BaseURL:  *baseURL,
		Token:    *token,
		Dir:      *dir,
		Workers:  *workers,
		Timeout:  *timeout,
		Attempts: *attempts,
		Verbose:  *verbose,
	}, *watch, *format, *logFile))
}

// run returns the process exit code: 1 on setup failure, 2 when some
// batch submissions failed.
func run(cfg submitter.Config, watch bool, format, logFile string) int {
	closer, err := submitter.SetupLogging(format, logFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = closer.Close() }()
	log := logger.Named("submit")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch {
		if err := submitter.Watch(ctx, cfg, log); err != nil {
			log.Error(ctx, "watch failed", logger.Error(err))
			return 1
		}
		return 0
	}

	stats, err := submitter.RunBatch(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "batch failed", logger.Error(err))
		return 1
	}
	_, _ = os.Stdout.WriteString(submitter.Summary(stats) + "\n")
	if stats.Failed > 0 {
		return 2
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
