package repository

import (
	"time"

	"github.com/okian/sudea/pkg/logger"
)

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithLogger sets the logger used for repository and SQL diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for created_at columns and
// session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSlowQueryThreshold sets the duration above which SQL statements are
// logged as slow.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(s *GormStore) {
		if d > 0 {
			s.slowQuery = d
		}
	}
}
