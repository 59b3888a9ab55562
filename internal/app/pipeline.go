package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/okian/sudea/internal/adapters/archive"
	"github.com/okian/sudea/internal/adapters/auth"
	"github.com/okian/sudea/internal/adapters/detector"
	"github.com/okian/sudea/internal/adapters/notify"
	"github.com/okian/sudea/internal/adapters/scratch"
	"github.com/okian/sudea/internal/domain/detection"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// maxLoggedOutput caps detector stderr/stdout echoed into server logs.
const maxLoggedOutput = 4 << 10

// Image is an uploaded image as received from the caller.
type Image struct {
	Data     []byte
	Filename string
}

// ImageSource yields the uploaded image on demand. It is called only after
// the caller is authenticated; a missing upload is reported as ErrNoImage.
type ImageSource func(ctx context.Context) (Image, error)

// Submission is one request to run the pipeline.
type Submission struct {
	Credentials auth.Credentials
	Image       ImageSource
}

// Result is the outcome of a successful run.
type Result struct {
	Image      model.StoredImage
	Detections []detection.Detection
	// Notified reports whether an alert was sent or queued.
	Notified bool
}

// Submit runs Authenticating, Staging, Detecting, Archiving, Persisting and
// Notifying in order. The first failing stage ends the run with a
// *StageError; a notification failure does not. The scratch copy is removed
// on every path. Caller cancellation is ignored once Submit is entered.
func (s *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	res, err := s.submit(ctx, sub)

	outcome := "succeeded"
	if err != nil {
		outcome = KindCode(err)
	}
	metrics.RecordSubmission(outcome)
	s.stats.add(outcome)

	if err != nil {
		var se *StageError
		stage := ""
		if errors.As(err, &se) {
			stage = string(se.Stage)
		}
		s.logger.Warn(ctx, "submission failed",
			logger.String("stage", stage),
			logger.String("kind", outcome),
			logger.Float64("elapsed_ms", metrics.Since(start)),
			logger.Error(err),
		)
		return Result{}, err
	}
	s.logger.Info(ctx, "submission succeeded",
		logger.String("image_id", res.Image.ID),
		logger.String("owner_id", res.Image.OwnerID),
		logger.Int("detections", len(res.Detections)),
		logger.Bool("notified", res.Notified),
		logger.Float64("elapsed_ms", metrics.Since(start)),
	)
	return res, nil
}

func (s *Service) submit(ctx context.Context, sub Submission) (Result, error) {
	id, ok := s.deps.PipelineAuth.Resolve(ctx, sub.Credentials)
	if !ok {
		return Result{}, fail(StageAuthenticating, ErrUnauthenticated, nil)
	}

	img, err := readImage(ctx, sub.Image)
	if err != nil {
		return Result{}, fail(StageStaging, ErrNoImage, err)
	}

	var path string
	err = s.timed(ctx, StageStaging, func() error {
		var err error
		path, err = s.deps.Scratch.Save(ctx, img.Data, scratch.NormalizeExt(filepath.Ext(img.Filename)))
		return err
	})
	if err != nil {
		return Result{}, fail(StageStaging, ErrStorage, err)
	}
	defer s.release(ctx, path)

	var dets []detection.Detection
	err = s.timed(ctx, StageDetecting, func() error {
		var err error
		dets, err = s.deps.Detector.Detect(ctx, path)
		return err
	})
	if err != nil {
		s.logDetectorFailure(ctx, err)
		if errors.Is(err, detector.ErrMalformedOutput) {
			return Result{}, fail(StageDetecting, ErrMalformedOutput, err)
		}
		return Result{}, fail(StageDetecting, ErrDetector, err)
	}
	metrics.RecordDetections(len(dets))

	var url string
	err = s.timed(ctx, StageArchiving, func() error {
		var err error
		url, err = s.deps.Uploader.Upload(ctx, path, archive.Namespace(id.ID))
		return err
	})
	if err != nil {
		return Result{}, fail(StageArchiving, ErrUpload, err)
	}

	var stored model.StoredImage
	err = s.timed(ctx, StagePersisting, func() error {
		serialized, err := detection.Encode(dets)
		if err != nil {
			return err
		}
		stored, err = s.deps.Repository.Record(ctx, url, serialized, id.ID)
		return err
	})
	if err != nil {
		return Result{}, fail(StagePersisting, ErrPersistence, err)
	}

	return Result{
		Image:      stored,
		Detections: dets,
		Notified:   s.notify(ctx, id, stored, dets),
	}, nil
}

// notify is best effort: failures are logged and counted, never returned.
func (s *Service) notify(ctx context.Context, id model.Identity, stored model.StoredImage, dets []detection.Detection) bool {
	if s.deps.Notifier == nil {
		return false
	}
	var sent bool
	err := s.timed(ctx, StageNotifying, func() error {
		var err error
		sent, err = s.deps.Notifier.Notify(ctx, notify.Alert{
			URL:        stored.URL,
			Detections: dets,
			DetectedAt: stored.CreatedAt,
			OwnerID:    id.ID,
			OwnerName:  id.Name,
			OwnerEmail: id.Email,
		})
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "alert not delivered",
			logger.String("image_id", stored.ID),
			logger.Error(fail(StageNotifying, ErrNotification, err)),
		)
		return false
	}
	return sent
}

func (s *Service) release(ctx context.Context, path string) {
	if err := s.deps.Scratch.Release(ctx, path); err != nil {
		s.logger.Error(ctx, "scratch file not released", logger.String("path", path), logger.Error(err))
	}
}

// timed runs fn and records its latency under stage.
func (s *Service) timed(_ context.Context, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordStageLatency(string(stage), result, metrics.Since(start))
	return err
}

// logDetectorFailure keeps the detector's own output in server logs only.
func (s *Service) logDetectorFailure(ctx context.Context, err error) {
	var exitErr *detector.ExitError
	var malformed *detector.MalformedOutputError
	switch {
	case errors.As(err, &exitErr):
		s.logger.Error(ctx, "detector exited with an error",
			logger.Int("exit_code", exitErr.Code),
			logger.String("stderr", truncate(exitErr.Stderr)),
		)
	case errors.As(err, &malformed):
		s.logger.Error(ctx, "detector output is not a detection list",
			logger.String("stdout", truncate(malformed.Raw)),
			logger.Error(malformed.Err),
		)
	default:
		s.logger.Error(ctx, "detector did not complete", logger.Error(err))
	}
}

func readImage(ctx context.Context, src ImageSource) (Image, error) {
	if src == nil {
		return Image{}, ErrNoImage
	}
	img, err := src(ctx)
	if err != nil {
		return Image{}, err
	}
	if len(img.Data) == 0 {
		return Image{}, ErrNoImage
	}
	return img, nil
}

func truncate(b []byte) string {
	if len(b) > maxLoggedOutput {
		return string(b[:maxLoggedOutput]) + "...(truncated)"
	}
	return string(b)
}
