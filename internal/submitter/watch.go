package submitter

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/sudea/internal/domain/dedupe"
	"github.com/okian/sudea/pkg/logger"
)

// Watch submits every image created in or written to cfg.Dir until ctx is
// done. A file is posted once it has been quiet for cfg.Settle; repeated
// events for the same path within that window collapse into one upload, and
// a file version that was already submitted is not posted again.
func Watch(ctx context.Context, cfg Config, log logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.NamedOrDiscard("submitter")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.Dir, err)
	}
	log.Info(ctx, "watching folder", logger.String("dir", cfg.Dir), logger.String("url", cfg.DetectURL()))

	client := NewClient(cfg)
	submitted := dedupe.NewInMemoryDeduper()
	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for path, t := range pending {
			if t.Stop() {
				wg.Done()
			}
			delete(pending, path)
		}
		mu.Unlock()
		wg.Wait()
	}()

	upload := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			log.Warn(ctx, "file vanished before upload", logger.String("file", path), logger.Error(err))
			return
		}
		key := dedupe.Fingerprint(path, info.Size(), info.ModTime())
		if submitted.SeenAndRecord(ctx, key) {
			log.Debug(ctx, "file version already submitted", logger.String("file", path))
			return
		}

		resp, err := client.SubmitFile(ctx, path)
		if err != nil {
			submitted.Unrecord(ctx, key)
			log.Error(ctx, "submission failed", logger.String("file", path), logger.Error(err))
			return
		}
		log.Info(ctx, "submitted",
			logger.String("file", path),
			logger.String("image_url", resp.ImageURL),
			logger.Int("detections", len(resp.Detections)))
	}

	// schedule must be called with mu held.
	schedule := func(path string) {
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(cfg.Settle, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == t {
				delete(pending, path)
			}
			mu.Unlock()
			upload(path)
		})
		pending[path] = t
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn(ctx, "watcher error", logger.Error(err))
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) || !IsImage(ev.Name) {
				continue
			}
			mu.Lock()
			if t, ok := pending[ev.Name]; ok && t.Stop() {
				t.Reset(cfg.Settle)
			} else {
				schedule(ev.Name)
			}
			mu.Unlock()
		}
	}
}
