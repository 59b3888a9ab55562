package notify

import (
	"time"

	"github.com/okian/sudea/pkg/logger"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAdmin sets the address copied on every alert.
func WithAdmin(addr string) Option {
	return func(d *Dispatcher) { d.admin = addr }
}

// WithSubject overrides the alert subject.
func WithSubject(subject string) Option {
	return func(d *Dispatcher) {
		if subject != "" {
			d.subject = subject
		}
	}
}

// WithOutbox routes alerts through an asynchronous outbox instead of sending
// inline.
func WithOutbox(o Outbox) Option {
	return func(d *Dispatcher) { d.outbox = o }
}

// WithSendTimeout bounds an inline send.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithClock overrides the queue timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}
