package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/sudea/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func note(id string) model.Notification {
	return model.Notification{ID: id, To: []string{"ops@example.com"}, Subject: "alert"}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given an outbox with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When a notification is enqueued", func() {
			So(q.Enqueue(ctx, note("n1")), ShouldBeNil)
			So(q.Len(), ShouldEqual, 1)

			Convey("Then it can be dequeued", func() {
				got := <-q.Dequeue()
				So(got.ID, ShouldEqual, "n1")
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the outbox is full", func() {
			So(q.Enqueue(ctx, note("n1")), ShouldBeNil)
			So(q.Enqueue(ctx, note("n2")), ShouldBeNil)

			err := q.Enqueue(ctx, note("n3"))

			Convey("Then the notification is refused without blocking", func() {
				So(errors.Is(err, ErrFull), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})
		})

		Convey("When the outbox is closed", func() {
			So(q.Enqueue(ctx, note("n1")), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)

			Convey("Then enqueue is refused", func() {
				So(errors.Is(q.Enqueue(ctx, note("n2")), ErrClosed), ShouldBeTrue)
			})

			Convey("Then buffered items drain before the channel closes", func() {
				var ids []string
				for n := range q.Dequeue() {
					ids = append(ids, n.ID)
				}
				So(ids, ShouldResemble, []string{"n1"})
			})
		})
	})

	Convey("Given concurrent producers and consumers", t, func() {
		q := NewInMemoryQueue(WithCapacity(1000))
		const producers, perProducer = 10, 50

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					_ = q.Enqueue(ctx, note(fmt.Sprintf("%d-%d", p, i)))
				}
			}(p)
		}
		wg.Wait()
		So(q.Close(), ShouldBeNil)

		seen := make(map[string]bool)
		var mu sync.Mutex
		var consumers sync.WaitGroup
		for c := 0; c < 4; c++ {
			consumers.Add(1)
			go func() {
				defer consumers.Done()
				for n := range q.Dequeue() {
					mu.Lock()
					seen[n.ID] = true
					mu.Unlock()
				}
			}()
		}
		consumers.Wait()

		Convey("Then every notification is consumed exactly once", func() {
			So(len(seen), ShouldEqual, producers*perProducer)
		})
	})
}
