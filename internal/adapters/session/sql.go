package session

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/sudea/internal/domain/model"
)

// SQLStore keeps sessions in the metadata database.
type SQLStore struct {
	backend SQLBackend
	ttl     time.Duration
	now     func() time.Time
}

// NewSQL returns a store backed by the sessions table.
func NewSQL(backend SQLBackend, ttl time.Duration) *SQLStore {
	return &SQLStore{backend: backend, ttl: ttlOrDefault(ttl), now: time.Now}
}

// Issue implements Store. The identity must belong to an existing user for
// Lookup to succeed later.
func (s *SQLStore) Issue(ctx context.Context, id model.Identity) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIssue, err)
	}
	if err := s.backend.CreateSession(ctx, token, id.ID, s.now().Add(s.ttl)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIssue, err)
	}
	return token, nil
}

// Lookup implements Store.
func (s *SQLStore) Lookup(ctx context.Context, token string) (model.Identity, bool, error) {
	return s.backend.FindSession(ctx, token)
}
