// Package worker drains the notification outbox and hands each item to a Sender.
package worker

import (
	"time"

	"github.com/okian/sudea/pkg/logger"
)

// Option applies a configuration option to a Pool.
type Option func(*Pool)

// WithLogger sets a custom logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSendTimeout bounds a single delivery attempt.
func WithSendTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}
