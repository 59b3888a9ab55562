// Package session resolves interactive (browser) session tokens to caller
// identities. Drivers: signed JWT cookies, Redis-held sessions and SQL rows.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/okian/sudea/internal/domain/model"
)

// Driver identifiers.
const (
	DriverJWT   = "jwt"
	DriverRedis = "redis"
	DriverSQL   = "sql"
)

const (
	defaultTTL   = 30 * 24 * time.Hour
	tokenBytes   = 32
	defaultRedis = "sudea:session:"
)

// Sentinel kinds for session errors.
var (
	ErrInvalidConfig = errors.New("invalid session config")
	ErrIssue         = errors.New("session issue failed")
)

// Store resolves and issues sessions. Lookup returns ok=false for unknown,
// expired or tampered tokens; err is reserved for backend failures.
type Store interface {
	Lookup(ctx context.Context, token string) (model.Identity, bool, error)
	Issue(ctx context.Context, id model.Identity) (string, error)
}

// Config selects and configures a driver.
type Config struct {
	Driver string
	TTL    time.Duration

	// Secret signs JWT sessions.
	Secret string

	Redis RedisConfig
}

// RedisConfig configures the Redis driver.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// SQLBackend is the persistence used by the SQL driver.
type SQLBackend interface {
	CreateSession(ctx context.Context, token, userID string, expires time.Time) error
	FindSession(ctx context.Context, token string) (model.Identity, bool, error)
}

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQL SQLBackend
}

// New creates a session store for cfg.Driver.
func New(ctx context.Context, cfg Config, deps Dependencies) (Store, error) {
	switch cfg.Driver {
	case DriverJWT, "":
		s, err := NewJWT(cfg.Secret, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		s, err := NewRedis(ctx, cfg.Redis, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQL:
		if deps.SQL == nil {
			return nil, fmt.Errorf("%w: sql driver requires a database handle", ErrInvalidConfig)
		}
		return NewSQL(deps.SQL, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

// newToken returns 32 random bytes, hex encoded.
func newToken() (string, error) {
	var b [tokenBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
