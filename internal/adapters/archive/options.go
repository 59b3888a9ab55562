package archive

import "github.com/okian/sudea/pkg/logger"

type settings struct {
	log logger.Logger
}

// Option applies a configuration option to an uploader.
type Option func(*settings)

// WithLogger sets the logger used by the uploader.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

func applyOptions(opts []Option) settings {
	s := settings{log: logger.NamedOrDiscard("archive")}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
