// Package archive uploads processed images to remote object storage under a
// per-owner namespace and issues signed credentials for browser-direct uploads.
package archive

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Driver identifiers.
const (
	DriverS3    = "s3"
	DriverAzure = "azure"
)

// Sentinel kinds for archive errors.
var (
	ErrUpload          = errors.New("archive upload failed")
	ErrInvalidConfig   = errors.New("invalid archive config")
	ErrSigningDisabled = errors.New("upload signing is not configured")
)

// Uploader stores a local file remotely and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, namespace string) (string, error)
}

// Namespace returns the remote folder shared by all uploads of ownerID.
func Namespace(ownerID string) string {
	return "user_" + ownerID + "_uploads"
}

// objectKey builds "<namespace>/<uuid><ext>".
func objectKey(namespace, localPath string) string {
	return path.Join(namespace, uuid.NewString()+strings.ToLower(filepath.Ext(localPath)))
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// joinURL appends an object key to a base URL, escaping each key segment.
func joinURL(base, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segs, "/")
}

// Config selects and configures a driver.
type Config struct {
	Driver string

	// PublicBaseURL, when set, replaces the provider URL in returned links
	// (CDN or custom domain).
	PublicBaseURL string

	// S3 and S3-compatible stores.
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool

	// Azure Blob Storage.
	AccountName string
	AccountKey  string
	Container   string
	ServiceURL  string
}

// New creates an Uploader for cfg.Driver.
func New(ctx context.Context, cfg Config, opts ...Option) (Uploader, error) {
	switch cfg.Driver {
	case DriverS3:
		return NewS3(ctx, cfg, opts...)
	case DriverAzure:
		return NewAzure(cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
}
