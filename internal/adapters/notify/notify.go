// Package notify turns detection results into alert emails and hands them to
// an outbox or a Sender.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sudea/internal/adapters/mq/worker"
	"github.com/okian/sudea/internal/domain/detection"
	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "Notificación de detección de objetos - SUDEA"

// DefaultSendTimeout bounds an inline send unless WithSendTimeout overrides it.
const DefaultSendTimeout = 30 * time.Second

//go:embed templates/alert.html
var templateFS embed.FS

var alertTemplate = template.Must(template.New("alert.html").
	Funcs(template.FuncMap{"percent": percent}).
	ParseFS(templateFS, "templates/alert.html"))

func percent(confidence float64) string {
	return fmt.Sprintf("%.1f", confidence*100)
}

// Alert is everything the email body needs about one completed run.
type Alert struct {
	URL        string
	Detections []detection.Detection
	DetectedAt time.Time
	OwnerID    string
	OwnerName  string
	OwnerEmail string
}

// Outbox accepts rendered notifications for asynchronous delivery.
type Outbox interface {
	Enqueue(ctx context.Context, n model.Notification) error
}

// Dispatcher applies the alert policy and renders the email.
type Dispatcher struct {
	sender      worker.Sender
	outbox      Outbox
	admin       string
	subject     string
	sendTimeout time.Duration
	now         func() time.Time
	log         logger.Logger
}

// NewDispatcher returns a dispatcher that sends through sender, inline unless
// an outbox is configured.
func NewDispatcher(sender worker.Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:      sender,
		subject:     DefaultSubject,
		sendTimeout: DefaultSendTimeout,
		now:         time.Now,
		log:         logger.NamedOrDiscard("notify"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify sends one alert when a has at least one detection and someone to
// send it to. It reports whether a notification was dispatched; a refused
// enqueue or a failed inline send is returned as ErrDelivery.
func (d *Dispatcher) Notify(ctx context.Context, a Alert) (bool, error) {
	if len(a.Detections) == 0 {
		metrics.RecordNotification("skipped_empty")
		d.log.Debug(ctx, "no detections, alert skipped", logger.String("url", a.URL))
		return false, nil
	}

	to := Recipients(a.OwnerEmail, d.admin)
	if len(to) == 0 {
		metrics.RecordNotification("skipped_no_recipient")
		d.log.Warn(ctx, "no recipients for alert", logger.String("owner_id", a.OwnerID))
		return false, nil
	}

	body, err := Render(a)
	if err != nil {
		metrics.RecordNotification("failed")
		return false, err
	}

	n := model.Notification{
		ID:       uuid.NewString(),
		To:       to,
		Subject:  d.subject,
		HTMLBody: body,
		QueuedAt: d.now(),
	}

	if d.outbox != nil {
		if err := d.outbox.Enqueue(ctx, n); err != nil {
			metrics.RecordNotification("failed")
			return false, fmt.Errorf("%w: enqueue: %w", ErrDelivery, err)
		}
		d.log.Debug(ctx, "alert queued", logger.String("notification_id", n.ID), logger.Int("recipients", len(to)))
		return true, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	start := time.Now()
	err = d.sender.Send(sendCtx, n)
	metrics.RecordSenderLatency(metrics.Since(start))
	if err != nil {
		metrics.RecordNotification("failed")
		return false, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	metrics.RecordNotification("sent")
	return true, nil
}

// Recipients returns the owner address followed by the admin address, with
// blanks dropped and duplicates removed case-insensitively.
func Recipients(ownerEmail, admin string) []string {
	out := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	for _, addr := range []string{ownerEmail, admin} {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// Render produces the HTML body for a. Detections are listed in order.
func Render(a Alert) (string, error) {
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	return buf.String(), nil
}
