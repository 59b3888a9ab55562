// Package auth resolves caller identity from request credentials through an
// ordered chain of resolvers.
package auth

import (
	"context"
	"strings"

	"github.com/okian/sudea/internal/domain/model"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

const bearerPrefix = "Bearer "

// Credentials are the raw authentication inputs of a request.
type Credentials struct {
	// Authorization is the Authorization header value.
	Authorization string
	// SessionToken is the interactive session cookie value.
	SessionToken string
}

// BearerToken returns the token of a "Bearer <token>" header.
func (c Credentials) BearerToken() (string, bool) {
	if !strings.HasPrefix(c.Authorization, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(c.Authorization[len(bearerPrefix):])
	return token, token != ""
}

// Resolver maps credentials to an identity. ok=false means this resolver does
// not recognise the caller.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, creds Credentials) (model.Identity, bool, error)
}

// Chain tries resolvers in order; the first match wins. A failing resolver is
// logged and skipped, so backend errors never authenticate a caller.
type Chain struct {
	resolvers []Resolver
	log       logger.Logger
}

// NewChain builds a chain from resolvers in priority order.
func NewChain(l logger.Logger, resolvers ...Resolver) *Chain {
	if l == nil {
		l = logger.NamedOrDiscard("auth")
	}
	return &Chain{resolvers: resolvers, log: l}
}

// Resolve returns the first identity produced by the chain.
func (c *Chain) Resolve(ctx context.Context, creds Credentials) (model.Identity, bool) {
	for _, r := range c.resolvers {
		id, ok, err := r.Resolve(ctx, creds)
		if err != nil {
			metrics.RecordAuthResolution(r.Name(), "error")
			c.log.Error(ctx, "credential resolver failed", logger.String("resolver", r.Name()), logger.Error(err))
			continue
		}
		if ok {
			metrics.RecordAuthResolution(r.Name(), "hit")
			c.log.Debug(ctx, "caller authenticated", logger.String("resolver", r.Name()), logger.String("user_id", id.ID))
			return id, true
		}
		metrics.RecordAuthResolution(r.Name(), "miss")
	}
	return model.Identity{}, false
}

// CredentialLookup finds the owner of a script-scoped token.
type CredentialLookup interface {
	FindScriptCredential(ctx context.Context, token string) (model.Identity, bool, error)
}

// BearerResolver accepts script-scoped API tokens. Tokens never expire.
type BearerResolver struct {
	creds CredentialLookup
}

// NewBearerResolver returns a resolver backed by creds.
func NewBearerResolver(creds CredentialLookup) *BearerResolver {
	return &BearerResolver{creds: creds}
}

// Name implements Resolver.
func (*BearerResolver) Name() string { return "bearer" }

// Resolve implements Resolver.
func (r *BearerResolver) Resolve(ctx context.Context, creds Credentials) (model.Identity, bool, error) {
	token, ok := creds.BearerToken()
	if !ok {
		return model.Identity{}, false, nil
	}
	return r.creds.FindScriptCredential(ctx, token)
}

// SessionLookup resolves an interactive session token.
type SessionLookup interface {
	Lookup(ctx context.Context, token string) (model.Identity, bool, error)
}

// SessionResolver accepts interactive session cookies.
type SessionResolver struct {
	sessions SessionLookup
}

// NewSessionResolver returns a resolver backed by sessions.
func NewSessionResolver(sessions SessionLookup) *SessionResolver {
	return &SessionResolver{sessions: sessions}
}

// Name implements Resolver.
func (*SessionResolver) Name() string { return "session" }

// Resolve implements Resolver.
func (r *SessionResolver) Resolve(ctx context.Context, creds Credentials) (model.Identity, bool, error) {
	if creds.SessionToken == "" {
		return model.Identity{}, false, nil
	}
	return r.sessions.Lookup(ctx, creds.SessionToken)
}
