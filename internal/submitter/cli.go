package submitter

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/sudea/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initialises the global logger on stdout, tee'd into logFile
// when it is non-empty. The returned closer releases the file.
func SetupLogging(format, logFile string) (io.Closer, error) {
	if logFile == "" {
		if err := logger.InitWith(format, os.Stdout); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWith(format, io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the submit tool.
func ShowHelp(w io.Writer) {
	_, _ = fmt.Fprintf(w, `Sudea image submitter
=====================

Posts .png/.jpg/.jpeg images to the detection pipeline using a script token
(download one from /api/generate-python-script, or set SUDEA_TOKEN).

Usage:
  submit [options] -dir <folder>

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -token string
        Script bearer token (default $SUDEA_TOKEN)
  -dir string
        Folder to submit or watch
  -watch
        Keep running and submit images as they appear in the folder
  -workers int
        Concurrent uploads in batch mode (default %d)
  -timeout duration
        Per-request timeout (default %s)
  -attempts int
        Open attempts for a locked file (default %d)
  -log string
        Also write logs to this file
  -verbose
        Log every response
  -help
        Show this help message

Examples:
  # Submit everything already in a folder
  submit -dir ./captures -token $TOKEN

  # Watch a camera drop folder
  submit -watch -dir /srv/camera -url https://sudea.example.com
`, DefaultWorkers, DefaultTimeout, DefaultAttempts)
}

// Summary renders a one-line run summary.
func Summary(s *Stats) string {
	return fmt.Sprintf("found=%d submitted=%d succeeded=%d failed=%d detections=%d duration=%s",
		s.Found, s.Submitted, s.Succeeded, s.Failed, s.Detections, s.Duration.Round(time.Millisecond))
}
