package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

const (
	defaultSendTimeout = 30 * time.Second
)

// Sender delivers one rendered notification.
type Sender interface {
	Send(ctx context.Context, n model.Notification) error
}

// Source is where workers read notifications from. The channel is closed when
// no more work will arrive.
type Source interface {
	Dequeue() <-chan model.Notification
	Close() error
}

// Pool runs a fixed number of workers over a Source.
type Pool struct {
	size        int
	source      Source
	sender      Sender
	sendTimeout time.Duration
	logger      logger.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewPool creates a pool of size workers. A size below one is raised to one.
func NewPool(size int, source Source, sender Sender, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		size:        size,
		source:      source,
		sender:      sender,
		sendTimeout: defaultSendTimeout,
		logger:      logger.NamedOrDiscard("notify-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Deliveries run under a context detached from
// ctx cancellation so that in-flight mail is not cut off mid-send; Shutdown is
// the way to stop the pool.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(base, "worker-"+strconv.Itoa(i))
	}
	metrics.UpdateWorkerCount(p.size)
}

func (p *Pool) run(ctx context.Context, name string) {
	defer p.wg.Done()
	log := p.logger.Named(name)
	for n := range p.source.Dequeue() {
		Deliver(ctx, p.sender, n, p.sendTimeout, log)
	}
}

// Shutdown closes the source and waits for the workers to drain it, or for
// ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.source.Close(); err != nil {
		p.logger.Error(ctx, "error closing outbox", logger.Error(err))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "notification pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Deliver sends n once and records the outcome. Failures are logged, never
// returned: a notification is best effort.
func Deliver(ctx context.Context, s Sender, n model.Notification, timeout time.Duration, log logger.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.Send(ctx, n)
	metrics.RecordSenderLatency(metrics.Since(start))

	if err != nil {
		metrics.RecordNotification("failed")
		log.Error(ctx, "notification delivery failed",
			logger.String("notification_id", n.ID),
			logger.Int("recipients", len(n.To)),
			logger.Error(err),
		)
		return
	}
	metrics.RecordNotification("sent")
	log.Info(ctx, "notification sent",
		logger.String("notification_id", n.ID),
		logger.Int("recipients", len(n.To)),
		logger.Duration("queued_for", time.Since(n.QueuedAt)),
	)
}
