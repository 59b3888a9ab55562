package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sudea/internal/adapters/mq/queue"
	"github.com/okian/sudea/internal/domain/detection"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (f *fakeSender) Send(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func sampleAlert() Alert {
	return Alert{
		URL: "https://cdn.example.com/user_u1_uploads/a.jpg",
		Detections: []detection.Detection{
			{Class: "fire", Confidence: 0.876},
			{Class: "smoke", Confidence: 0.5},
		},
		DetectedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		OwnerID:    "u1",
		OwnerName:  "Ana",
		OwnerEmail: "ana@example.com",
	}
}

func TestRecipients(t *testing.T) {
	Convey("Given owner and admin addresses", t, func() {
		So(Recipients("ana@example.com", "ops@example.com"), ShouldResemble, []string{"ana@example.com", "ops@example.com"})
		So(Recipients("Ops@Example.com", "ops@example.com"), ShouldResemble, []string{"Ops@Example.com"})
		So(Recipients("", "ops@example.com"), ShouldResemble, []string{"ops@example.com"})
		So(Recipients(" ", ""), ShouldBeEmpty)
	})
}

func TestRender(t *testing.T) {
	Convey("Given an alert with two detections", t, func() {
		body, err := Render(sampleAlert())
		So(err, ShouldBeNil)

		Convey("Then each detection is listed in order with a one-decimal percentage", func() {
			fire := strings.Index(body, "Clase: fire</b>, Confianza: 87.6%")
			smoke := strings.Index(body, "Clase: smoke</b>, Confianza: 50.0%")
			So(fire, ShouldBeGreaterThan, 0)
			So(smoke, ShouldBeGreaterThan, fire)
			So(strings.Count(body, "<li>"), ShouldEqual, 2)
		})

		Convey("Then the uploader and image are included", func() {
			So(body, ShouldContainSubstring, "Ana (ID: u1)")
			So(body, ShouldContainSubstring, "ana@example.com")
			So(body, ShouldContainSubstring, `src="https://cdn.example.com/user_u1_uploads/a.jpg"`)
			So(body, ShouldContainSubstring, "2026-03-01 12:30:00 UTC")
		})
	})

	Convey("Given an alert with hostile class names", t, func() {
		a := sampleAlert()
		a.Detections = []detection.Detection{{Class: "<script>x</script>", Confidence: 1}}
		a.OwnerName = ""
		a.OwnerEmail = ""
		body, err := Render(a)
		So(err, ShouldBeNil)

		Convey("Then markup is escaped", func() {
			So(body, ShouldNotContainSubstring, "<script>")
			So(body, ShouldContainSubstring, "ID de usuario:</strong> u1")
			So(body, ShouldContainSubstring, "100.0%")
		})
	})
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()

	Convey("Given an inline dispatcher", t, func() {
		sender := &fakeSender{}
		d := NewDispatcher(sender, WithAdmin("ops@example.com"), WithSubject("Alerta"), WithLogger(logger.Discard()))

		Convey("When the alert has detections", func() {
			sent, err := d.Notify(ctx, sampleAlert())

			Convey("Then exactly one email goes to owner and admin", func() {
				So(err, ShouldBeNil)
				So(sent, ShouldBeTrue)
				So(len(sender.sent), ShouldEqual, 1)
				So(sender.sent[0].To, ShouldResemble, []string{"ana@example.com", "ops@example.com"})
				So(sender.sent[0].Subject, ShouldEqual, "Alerta")
				So(sender.sent[0].ID, ShouldNotBeEmpty)
			})
		})

		Convey("When the alert has no detections", func() {
			a := sampleAlert()
			a.Detections = nil
			sent, err := d.Notify(ctx, a)

			Convey("Then nothing is sent", func() {
				So(err, ShouldBeNil)
				So(sent, ShouldBeFalse)
				So(sender.sent, ShouldBeEmpty)
			})
		})

		Convey("When the sender fails", func() {
			sender.err = errors.New("connection refused")
			sent, err := d.Notify(ctx, sampleAlert())

			Convey("Then a delivery error is reported", func() {
				So(sent, ShouldBeFalse)
				So(errors.Is(err, ErrDelivery), ShouldBeTrue)
			})
		})
	})

	Convey("Given a dispatcher without admin and an anonymous owner", t, func() {
		sender := &fakeSender{}
		d := NewDispatcher(sender)
		a := sampleAlert()
		a.OwnerEmail = ""

		sent, err := d.Notify(ctx, a)

		Convey("Then the alert is skipped", func() {
			So(err, ShouldBeNil)
			So(sent, ShouldBeFalse)
			So(sender.sent, ShouldBeEmpty)
		})
	})

	Convey("Given a dispatcher with an outbox", t, func() {
		sender := &fakeSender{}
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		queuedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		d := NewDispatcher(sender, WithOutbox(q), WithAdmin("ops@example.com"), WithClock(func() time.Time { return queuedAt }))

		Convey("When an alert is dispatched", func() {
			sent, err := d.Notify(ctx, sampleAlert())

			Convey("Then it is queued instead of sent", func() {
				So(err, ShouldBeNil)
				So(sent, ShouldBeTrue)
				So(sender.sent, ShouldBeEmpty)
				n := <-q.Dequeue()
				So(n.QueuedAt, ShouldEqual, queuedAt)
				So(n.HTMLBody, ShouldContainSubstring, "Clase: fire")
			})
		})

		Convey("When the outbox is full", func() {
			_, _ = d.Notify(ctx, sampleAlert())
			sent, err := d.Notify(ctx, sampleAlert())

			Convey("Then the refusal is reported as a delivery error", func() {
				So(sent, ShouldBeFalse)
				So(errors.Is(err, ErrDelivery), ShouldBeTrue)
				So(errors.Is(err, queue.ErrFull), ShouldBeTrue)
			})
		})
	})
}

func TestSMTPSender(t *testing.T) {
	Convey("Given SMTP settings", t, func() {
		Convey("When the host is missing", func() {
			_, err := NewSMTPSender(SMTPConfig{From: "sudea@example.com"})
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When settings are complete", func() {
			s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 465, From: "sudea@example.com", Username: "u", Password: "p", ImplicitTLS: true})
			So(err, ShouldBeNil)
			So(s, ShouldNotBeNil)
		})
	})

	Convey("Given a notification", t, func() {
		n := model.Notification{To: []string{"ana@example.com", "ops@example.com"}, Subject: "Alert", HTMLBody: "<p>hi</p>"}

		Convey("When a message is built", func() {
			msg, err := buildMessage("sudea@example.com", n)
			So(err, ShouldBeNil)

			rcpts, err := msg.GetRecipients()
			So(err, ShouldBeNil)
			So(rcpts, ShouldResemble, []string{"ana@example.com", "ops@example.com"})
		})

		Convey("When a recipient is not an address", func() {
			n.To = []string{"not an address"}
			_, err := buildMessage("sudea@example.com", n)
			So(errors.Is(err, ErrDelivery), ShouldBeTrue)
		})
	})
}
