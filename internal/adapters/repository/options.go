package repository

// DefaultMaxHistory is the number of consolidated results kept per student
// skill unless WithMaxHistory says otherwise.
const DefaultMaxHistory = 100

type options struct {
	maxHistory int
}

func newOptions(opts []Option) options {
	o := options{maxHistory: DefaultMaxHistory}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithMaxHistory caps the consolidated results kept per student skill; the
// oldest are dropped first. n <= 0 keeps everything.
func WithMaxHistory(n int) Option {
	return func(o *options) {
		o.maxHistory = n
	}
}
