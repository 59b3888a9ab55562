package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/sudea/internal/adapters/mq/queue"
	"github.com/okian/sudea/internal/adapters/mq/worker"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]error
	delay time.Duration
}

func (s *recordingSender) Send(ctx context.Context, n model.Notification) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[n.ID]; err != nil {
		return err
	}
	s.sent = append(s.sent, n.ID)
	return nil
}

func (s *recordingSender) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func TestPool(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a pool of three workers over an outbox", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		sender := &recordingSender{fail: map[string]error{"n-3": errors.New("smtp 550")}}
		pool := worker.NewPool(3, q, sender, worker.WithLogger(logger.Discard()))
		pool.Start(ctx)

		convey.Convey("When notifications are enqueued and the pool shuts down", func() {
			for i := 0; i < 10; i++ {
				convey.So(q.Enqueue(ctx, model.Notification{ID: fmt.Sprintf("n-%d", i)}), convey.ShouldBeNil)
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the outbox is drained and failures are swallowed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(sender.ids()), convey.ShouldEqual, 9)
				convey.So(sender.ids(), convey.ShouldNotContain, "n-3")
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a slow sender", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		sender := &recordingSender{delay: time.Second}
		pool := worker.NewPool(1, q, sender, worker.WithLogger(logger.Discard()))
		pool.Start(ctx)
		convey.So(q.Enqueue(ctx, model.Notification{ID: "slow"}), convey.ShouldBeNil)

		convey.Convey("When shutdown is given less time than the send needs", func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then shutdown reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a send timeout shorter than the sender", t, func() {
		sender := &recordingSender{delay: time.Second}

		convey.Convey("When Deliver is called directly", func() {
			start := time.Now()
			worker.Deliver(ctx, sender, model.Notification{ID: "late"}, 20*time.Millisecond, logger.Discard())

			convey.Convey("Then it gives up at the deadline", func() {
				convey.So(time.Since(start), convey.ShouldBeLessThan, 500*time.Millisecond)
				convey.So(sender.ids(), convey.ShouldBeEmpty)
			})
		})
	})
}
