package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/sudea/internal/domain/model"
)

type claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTStore keeps the identity in an HS256-signed token. Nothing is stored
// server side.
type JWTStore struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWT returns a JWTStore signing with secret.
func NewJWT(secret string, ttl time.Duration) (*JWTStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: jwt secret is empty", ErrInvalidConfig)
	}
	return &JWTStore{secret: []byte(secret), ttl: ttlOrDefault(ttl), now: time.Now}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *JWTStore) WithClock(now func() time.Time) *JWTStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue implements Store.
func (s *JWTStore) Issue(_ context.Context, id model.Identity) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %w", ErrIssue, err)
	}
	return signed, nil
}

// Lookup implements Store. Bad signatures, other algorithms and expired
// tokens are reported as not found.
func (s *JWTStore) Lookup(_ context.Context, token string) (model.Identity, bool, error) {
	if token == "" {
		return model.Identity{}, false, nil
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || c.Subject == "" {
		return model.Identity{}, false, nil
	}
	return model.Identity{ID: c.Subject, Name: c.Name, Email: c.Email}, true, nil
}
