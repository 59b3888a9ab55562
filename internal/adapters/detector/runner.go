// Package detector runs the external object detector as a child process and
// maps its exit status and stdout to detections or typed failures.
package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/okian/sudea/internal/domain/detection"
	"github.com/okian/sudea/pkg/logger"
	"github.com/okian/sudea/pkg/metrics"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the
// process has been killed.
const waitDelay = 2 * time.Second

// Config is resolved once at process start.
type Config struct {
	// Command is the executable, e.g. "python3".
	Command string
	// Args precede the image and model arguments, e.g. the script path.
	Args []string
	// ImageFlag and ModelFlag prefix the two paths when non-empty.
	ImageFlag string
	ModelFlag string
	// ModelPath is the model artifact handed to every invocation.
	ModelPath string
	// Timeout bounds a single invocation; zero disables it.
	Timeout time.Duration
}

// Runner invokes the detector once per call. It holds no per-request state
// and is safe for concurrent use.
type Runner struct {
	cfg Config
	log logger.Logger
}

// New validates cfg and returns a Runner.
func New(cfg Config, opts ...Option) (*Runner, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: command is empty", ErrInvalidConfig)
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path is empty", ErrInvalidConfig)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	r := &Runner{
		cfg: cfg,
		log: logger.NamedOrDiscard("detector"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Argv returns the full command line used for imagePath.
func (r *Runner) Argv(imagePath string) []string {
	argv := make([]string, 0, len(r.cfg.Args)+5)
	argv = append(argv, r.cfg.Command)
	argv = append(argv, r.cfg.Args...)
	if r.cfg.ImageFlag != "" {
		argv = append(argv, r.cfg.ImageFlag)
	}
	argv = append(argv, imagePath)
	if r.cfg.ModelFlag != "" {
		argv = append(argv, r.cfg.ModelFlag)
	}
	return append(argv, r.cfg.ModelPath)
}

// Detect runs the detector over imagePath.
//
// A non-zero exit returns *ExitError and stdout is ignored. A clean exit with
// blank stdout returns an empty slice. Stdout that is not a JSON array of
// detections returns *MalformedOutputError. Start failures and timeouts
// return ErrDetectorFailed.
func (r *Runner) Detect(ctx context.Context, imagePath string) ([]detection.Detection, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	argv := r.Argv(imagePath)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // command comes from process config
	isolate(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug(ctx, "starting detector", logger.Any("argv", argv))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if stderr.Len() > 0 {
		r.log.Debug(ctx, "detector stderr", logger.String("stderr", stderr.String()))
	}

	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		metrics.RecordDetectorExit("timeout")
		r.log.Error(ctx, "detector did not finish",
			logger.Duration("elapsed", elapsed), logger.Error(ctxErr))
		return nil, fmt.Errorf("%w: %w", ErrDetectorFailed, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			metrics.RecordDetectorExit(strconv.Itoa(code))
			r.log.Error(ctx, "detector exited with failure",
				logger.Int("exit_code", code),
				logger.Int("stderr_bytes", stderr.Len()),
				logger.Duration("elapsed", elapsed))
			return nil, &ExitError{Code: code, Stderr: stderr.Bytes()}
		}
		metrics.RecordDetectorExit("start_failed")
		r.log.Error(ctx, "detector could not be started", logger.Error(err))
		return nil, fmt.Errorf("%w: start %s: %w", ErrDetectorFailed, argv[0], err)
	}
	metrics.RecordDetectorExit("0")

	ds, err := detection.Parse(stdout.Bytes())
	if err != nil {
		r.log.Debug(ctx, "detector stdout", logger.String("stdout", stdout.String()))
		r.log.Error(ctx, "detector output is not a detection list",
			logger.Int("stdout_bytes", stdout.Len()), logger.Error(err))
		return nil, &MalformedOutputError{Raw: stdout.Bytes(), Err: err}
	}

	r.log.Info(ctx, "detector finished",
		logger.Int("detections", len(ds)), logger.Duration("elapsed", elapsed))
	return ds, nil
}
