// Package repository persists users, processed images, API credentials and
// interactive sessions.
package repository

import (
	"context"
	"time"

	"github.com/okian/sudea/internal/domain/model"
)

// Store provides read/write access to the metadata database.
type Store interface {
	// Record persists a processed image owned by ownerID.
	Record(ctx context.Context, url, serializedDetections, ownerID string) (model.StoredImage, error)
	// ListByOwner returns the owner's images, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]model.StoredImage, error)
	// CountByOwner returns the number of images owned by ownerID.
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	// CountAnomalousByOwner counts the owner's images with at least one
	// detection whose class equals label, ignoring case.
	CountAnomalousByOwner(ctx context.Context, ownerID, label string) (int64, error)

	// FindScriptCredential resolves a script-scoped token to its owner.
	FindScriptCredential(ctx context.Context, token string) (model.Identity, bool, error)
	// CreateCredential stores a new API token for ownerID.
	CreateCredential(ctx context.Context, ownerID, token string, scriptScoped bool) (model.ApiCredential, error)

	// FindUser loads a user by id.
	FindUser(ctx context.Context, id string) (model.User, bool, error)
	// SaveUser inserts or updates a user.
	SaveUser(ctx context.Context, u model.User) error

	// CreateSession stores an interactive session for userID.
	CreateSession(ctx context.Context, token, userID string, expires time.Time) error
	// FindSession resolves an unexpired session token to its user.
	FindSession(ctx context.Context, token string) (model.Identity, bool, error)

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error
	// Close releases the underlying connection pool.
	Close() error
}
