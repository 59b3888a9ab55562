// Package submitter posts image files to the detection pipeline, either as a
// one-off concurrent batch over a folder or by watching a folder for new files.
package submitter

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/okian/sudea/internal/domain/detection"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultWorkers    = 4
	DefaultTimeout    = 5 * time.Minute
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultSettle     = time.Second
	detectPath        = "/api/detect"
)

// Extensions are the image suffixes picked up by both modes.
var Extensions = []string{".png", ".jpg", ".jpeg"}

// Sentinel kinds for submitter errors.
var (
	ErrInvalidConfig = errors.New("invalid submitter config")
	ErrLocked        = errors.New("file is locked")
	ErrRejected      = errors.New("submission rejected")
)

// Config holds configuration for a submitter run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Token      string        // Script bearer token
	Dir        string        // Folder to submit or watch
	Workers    int           // Concurrent uploads in batch mode
	Timeout    time.Duration // Per-request timeout
	Attempts   int           // Open attempts for a locked file
	RetryDelay time.Duration // Pause between open attempts
	Settle     time.Duration // Quiet period before a watched file is submitted
	Verbose    bool          // Log every response
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	return c
}

// Validate checks required fields.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is empty", ErrInvalidConfig)
	case c.Token == "":
		return fmt.Errorf("%w: token is empty", ErrInvalidConfig)
	case c.Dir == "":
		return fmt.Errorf("%w: dir is empty", ErrInvalidConfig)
	}
	return nil
}

// DetectURL is the pipeline endpoint under BaseURL.
func (c Config) DetectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + detectPath
}

// IsImage reports whether path has one of Extensions, ignoring case.
func IsImage(path string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(path)))
}

// Response is the pipeline's success body.
type Response struct {
	Message    string                `json:"message"`
	ImageURL   string                `json:"imageUrl"`
	Detections []detection.Detection `json:"detections"`
}

// Stats holds run statistics.
type Stats struct {
	Found      int
	Submitted  int
	Succeeded  int
	Failed     int
	Detections int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
