package worker

import (
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

type options struct {
	name   string
	logger logger.Logger
}

// Option applies a configuration option to a Worker.
type Option func(*options)

// WithName sets the worker name for identification, logging and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
