package detector

import "github.com/okian/sudea/pkg/logger"

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithLogger sets the logger used for detector diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}
