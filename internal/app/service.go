// Package service is the detection pipeline and the account operations built
// around it. It owns no I/O of its own; every collaborator is injected.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/sudea/internal/adapters/archive"
	"github.com/okian/sudea/internal/adapters/auth"
	"github.com/okian/sudea/internal/adapters/notify"
	"github.com/okian/sudea/internal/domain/detection"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
)

// Authenticator maps request credentials to an identity.
type Authenticator interface {
	Resolve(ctx context.Context, creds auth.Credentials) (model.Identity, bool)
}

// Scratch holds an upload on local disk while it is processed.
type Scratch interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
	Release(ctx context.Context, path string) error
}

// Detector runs object detection on a local image.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]detection.Detection, error)
}

// Repository is the metadata store as used by the service.
type Repository interface {
	Record(ctx context.Context, url, serializedDetections, ownerID string) (model.StoredImage, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.StoredImage, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	CountAnomalousByOwner(ctx context.Context, ownerID, label string) (int64, error)
	CreateCredential(ctx context.Context, ownerID, token string, scriptScoped bool) (model.ApiCredential, error)
	FindUser(ctx context.Context, id string) (model.User, bool, error)
}

// Notifier dispatches the alert for a completed run.
type Notifier interface {
	Notify(ctx context.Context, a notify.Alert) (bool, error)
}

// Signer issues browser upload signatures.
type Signer interface {
	Sign(namespace string, now time.Time) (archive.SignedUpload, error)
}

// Background is a component with its own goroutines, such as the
// notification worker pool.
type Background interface {
	Start(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// Outbox exposes the pending notification count.
type Outbox interface {
	Len() int
}

// Dependencies are the collaborators of a Service. Notifier, Signer,
// Background and Outbox are optional.
type Dependencies struct {
	// PipelineAuth accepts script bearer tokens and sessions.
	PipelineAuth Authenticator
	// InteractiveAuth accepts sessions only.
	InteractiveAuth Authenticator

	Scratch    Scratch
	Detector   Detector
	Uploader   archive.Uploader
	Repository Repository
	Notifier   Notifier
	Signer     Signer
	Background Background
	Outbox     Outbox
}

// Service runs submissions and account queries.
type Service struct {
	deps Dependencies

	anomalyLabel string
	uploadURL    string
	now          func() time.Time
	logger       logger.Logger

	mu      sync.RWMutex
	started bool
	stats   *counters
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAnomalyLabel sets the class counted as an anomaly in profiles.
func WithAnomalyLabel(label string) Option {
	return func(s *Service) {
		if label != "" {
			s.anomalyLabel = label
		}
	}
}

// WithUploadURL sets the pipeline URL baked into uploader scripts.
func WithUploadURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.uploadURL = u
		}
	}
}

// WithClock overrides the time source used for signatures.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. The pipeline collaborators are required.
func New(deps Dependencies, opts ...Option) (*Service, error) {
	switch {
	case deps.PipelineAuth == nil:
		return nil, fmt.Errorf("%w: pipeline authenticator is required", ErrMisconfigured)
	case deps.InteractiveAuth == nil:
		return nil, fmt.Errorf("%w: interactive authenticator is required", ErrMisconfigured)
	case deps.Scratch == nil:
		return nil, fmt.Errorf("%w: scratch store is required", ErrMisconfigured)
	case deps.Detector == nil:
		return nil, fmt.Errorf("%w: detector is required", ErrMisconfigured)
	case deps.Uploader == nil:
		return nil, fmt.Errorf("%w: uploader is required", ErrMisconfigured)
	case deps.Repository == nil:
		return nil, fmt.Errorf("%w: repository is required", ErrMisconfigured)
	}

	s := &Service{
		deps:         deps,
		anomalyLabel: "fire",
		uploadURL:    "http://localhost:9080/api/detect",
		now:          time.Now,
		logger:       logger.NamedOrDiscard("service"),
		stats:        newCounters(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches background components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.deps.Background != nil {
		s.deps.Background.Start(ctx)
	}
	s.started = true
	s.logger.Info(ctx, "detection service started",
		logger.String("anomaly_label", s.anomalyLabel),
		logger.Bool("notifications", s.deps.Notifier != nil),
	)
	return nil
}

// Stop drains background components. In-flight submissions are not waited on.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	if s.deps.Background != nil {
		if err := s.deps.Background.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.logger.Info(ctx, "detection service stopped")
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       started,
		"anomalyLabel":  s.anomalyLabel,
		"notifications": s.deps.Notifier != nil,
		"submissions":   s.stats.snapshot(),
	}
	if s.deps.Outbox != nil {
		stats["outboxLength"] = s.deps.Outbox.Len()
	}
	return stats
}

// counters tallies submission outcomes since start.
type counters struct {
	mu       sync.Mutex
	outcomes map[string]int64
}

func newCounters() *counters {
	return &counters{outcomes: make(map[string]int64)}
}

func (c *counters) add(outcome string) {
	c.mu.Lock()
	c.outcomes[outcome]++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.outcomes))
	for k, v := range c.outcomes {
		out[k] = v
	}
	return out
}
