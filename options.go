package serial

import "go.uber.org/zap"

// DefaultMaxDepth bounds traversal nesting. Owned object graphs are trees, so
// only a pointer cycle or a pathological structure reaches it.
const DefaultMaxDepth = 10000

// Options configures one top-level call.
type Options struct {
	// ErrorChecking frames every traversal entry with a type index and a
	// bytes-used count. Writer and reader must agree on it.
	ErrorChecking bool
	// Traits are attached to the root archive.
	Traits TraitSet
	// Allocator provides the buffer Serialize packs into.
	Allocator func(n int) Buffer
	// MaxDepth bounds traversal nesting.
	MaxDepth int
	// Logger receives per-call diagnostics. Nil means the package logger.
	Logger *zap.Logger
}

// Option configures Options.
type Option func(*Options)

// WithErrorChecking turns the self-describing framing on or off. The default
// is off unless the module is built with the serialcheck tag.
func WithErrorChecking(on bool) Option {
	return func(o *Options) { o.ErrorChecking = on }
}

// WithTraits attaches traits to the root archive.
func WithTraits(ts ...Trait) Option {
	return func(o *Options) { o.Traits = o.Traits.With(ts...) }
}

// WithAllocator makes Serialize pack into buffers returned by fn.
func WithAllocator(fn func(n int) Buffer) Option {
	return func(o *Options) {
		if fn != nil {
			o.Allocator = fn
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxDepth = n
		}
	}
}

// WithLogger routes per-call diagnostics to l.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func buildOptions(opts []Option) *Options {
	o := &Options{
		ErrorChecking: checkedByDefault,
		Allocator:     DefaultAllocator,
		MaxDepth:      DefaultMaxDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger()
}
