package submitter

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/sudea/pkg/logger"
)

// Collect lists the images directly under dir, sorted by name.
func Collect(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if IsImage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return paths, nil
}

// RunBatch submits every image in cfg.Dir with cfg.Workers concurrent uploads.
// Individual failures are counted, not returned; the error reports only
// setup problems and cancellation.
func RunBatch(ctx context.Context, cfg Config, log logger.Logger) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.NamedOrDiscard("submitter")
	}

	stats := &Stats{StartTime: time.Now()}
	paths, err := Collect(cfg.Dir)
	if err != nil {
		return nil, err
	}
	stats.Found = len(paths)
	log.Info(ctx, "submitting images",
		logger.String("dir", cfg.Dir),
		logger.Int("images", len(paths)),
		logger.Int("workers", cfg.Workers),
		logger.String("url", cfg.DetectURL()))

	client := NewClient(cfg)
	var submitted, succeeded, failed, detections int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			atomic.AddInt64(&submitted, 1)
			resp, err := client.SubmitFile(gctx, path)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.Error(gctx, "submission failed", logger.String("file", path), logger.Error(err))
				return nil
			}
			atomic.AddInt64(&succeeded, 1)
			atomic.AddInt64(&detections, int64(len(resp.Detections)))
			if cfg.Verbose {
				log.Info(gctx, "submitted",
					logger.String("file", path),
					logger.String("image_url", resp.ImageURL),
					logger.Int("detections", len(resp.Detections)))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Submitted = int(submitted)
	stats.Succeeded = int(succeeded)
	stats.Failed = int(failed)
	stats.Detections = int(detections)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	log.Info(ctx, "batch completed",
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("detections", stats.Detections),
		logger.Duration("duration", stats.Duration))
	return stats, ctx.Err()
}
