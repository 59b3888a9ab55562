// Package scratch stores uploaded images on local disk for the duration of a
// single submission.
package scratch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/sudea/pkg/metrics"
)

// DefaultExt is used when the upload carries no usable extension.
const DefaultExt = ".jpg"

const (
	dirPerm  = 0o750
	filePerm = 0o600
	randLen  = 4 // bytes, rendered as 8 hex chars
)

// ErrStorage is returned when an artifact cannot be written or removed.
var ErrStorage = errors.New("scratch storage failed")

// Store owns a scratch directory. Names combine a millisecond timestamp with
// 32 random bits and files are created with O_EXCL, so concurrent saves never
// share a path.
type Store struct {
	dir string
	now func() time.Time
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the time source used in artifact names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New resolves dir to an absolute path and creates it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrStorage, dir, err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrStorage, abs, err)
	}
	s := &Store{dir: abs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute scratch directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data to a new artifact and returns its absolute path.
func (s *Store) Save(_ context.Context, data []byte, ext string) (string, error) {
	var suffix [randLen]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		metrics.RecordScratchError("save")
		return "", fmt.Errorf("%w: random suffix: %w", ErrStorage, err)
	}
	name := fmt.Sprintf("upload-%d-%s%s", s.now().UnixMilli(), hex.EncodeToString(suffix[:]), NormalizeExt(ext))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		metrics.RecordScratchError("save")
		return "", fmt.Errorf("%w: create %s: %w", ErrStorage, name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		metrics.RecordScratchError("save")
		return "", fmt.Errorf("%w: write %s: %w", ErrStorage, name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		metrics.RecordScratchError("save")
		return "", fmt.Errorf("%w: close %s: %w", ErrStorage, name, err)
	}
	return path, nil
}

// Release removes the artifact at path. A missing file is not an error.
func (s *Store) Release(_ context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		metrics.RecordScratchError("release")
		return fmt.Errorf("%w: remove %s: %w", ErrStorage, filepath.Base(path), err)
	}
	return nil
}

// NormalizeExt returns a lower-case extension with a leading dot, or
// DefaultExt when ext is empty or contains path separators.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." || strings.ContainsAny(ext, `/\`) {
		return DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
