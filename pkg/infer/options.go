// Package infer generates pointer-safety constraints for C translation
// units, merges them into one program graph, solves it and infers array
// bounds over the solution.
package infer

import (
	"slices"

	"github.com/2000jedi/checkedc-clang/internal/log"
	"github.com/2000jedi/checkedc-clang/pkg/bounds"
)

// Options configures constraint generation and the bounds heuristics.
type Options struct {
	// Allocators are functions whose size argument types their result.
	Allocators []string
	// SafeExterns are external functions trusted without a definition.
	SafeExterns []string
	// SkipArgFunctions are callees whose arguments are not linked to their
	// parameters.
	SkipArgFunctions []string
	// HandleVarargs forces arguments passed through "..." to Wild.
	HandleVarargs bool
	Names         bounds.NameConfig
	// Workers bounds per-unit parallelism; zero means one per unit.
	Workers int
	Logger  log.Logger
}

// Option configures Options.
type Option func(*Options)

// DefaultOptions returns the built-in configuration.
func DefaultOptions() Options {
	return Options{
		Allocators:       []string{"malloc", "calloc", "realloc"},
		SafeExterns:      []string{"malloc", "calloc", "realloc", "free"},
		SkipArgFunctions: []string{"realloc"},
		Names:            bounds.DefaultNameConfig(),
	}
}

// NewOptions applies opts over the defaults.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// WithLogger sets the logger used for unsupported-construct warnings.
func WithLogger(l log.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithAllocators replaces the allocator list.
func WithAllocators(names ...string) Option {
	return func(o *Options) {
		o.Allocators = names
	}
}

// WithSafeExterns replaces the trusted external function list.
func WithSafeExterns(names ...string) Option {
	return func(o *Options) {
		o.SafeExterns = names
	}
}

// WithSkipArgFunctions replaces the list of callees whose arguments are
// left unlinked.
func WithSkipArgFunctions(names ...string) Option {
	return func(o *Options) {
		o.SkipArgFunctions = names
	}
}

// WithVarargs enables forcing variadic arguments to Wild.
func WithVarargs(enabled bool) Option {
	return func(o *Options) {
		o.HandleVarargs = enabled
	}
}

// WithNameConfig sets the name heuristic configuration.
func WithNameConfig(cfg bounds.NameConfig) Option {
	return func(o *Options) {
		o.Names = cfg
	}
}

// WithWorkers bounds the number of units generated concurrently.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

func (o *Options) isAllocator(name string) bool {
	return slices.Contains(o.Allocators, name)
}

func (o *Options) isSafeExtern(name string) bool {
	return slices.Contains(o.SafeExterns, name)
}

func (o *Options) skipsArgs(name string) bool {
	return slices.Contains(o.SkipArgFunctions, name)
}
