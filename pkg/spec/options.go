package spec

import "github.com/go-logr/logr"

type options struct {
	rejectUnknownFields bool
	log                 logr.Logger
	root                string
}

// Option configures Validate, Parse and Load.
type Option func(*options)

// WithRejectUnknownFields treats keys that are not part of the manifest format as errors.
// By default unknown keys are ignored so newer manifests still load.
func WithRejectUnknownFields() Option {
	return func(o *options) { o.rejectUnknownFields = true }
}

// WithLogger receives non-fatal findings such as overly long names.
func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRoot sets the directory or base URL relative file references resolve against.
func WithRoot(root string) Option {
	return func(o *options) { o.root = root }
}

func newOptions(opts []Option) options {
	o := options{log: logr.Discard()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
