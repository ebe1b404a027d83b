package multiturn

import (
	"errors"
	"fmt"
	"sort"
)

const (
	NameMathTips          = "math_tip_trick"
	NameMathTipsMultiTurn = "math_tip_trick_multi_turn"
)

var ErrUnknownScheduler = errors.New("unknown scheduler")

type unknownSchedulerError struct {
	name  string
	known []string
}

func (e unknownSchedulerError) Error() string {
	return fmt.Sprintf("unknown scheduler %q (registered: %v)", e.name, e.known)
}

func (e unknownSchedulerError) Unwrap() error {
	return ErrUnknownScheduler
}

// Factory builds a scheduler from Options.
type Factory func(Options) (Scheduler, error)

// Registry maps configuration keys to scheduler factories. It is filled
// at startup before concurrent use, so it carries no lock.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a fresh registry holding the built-in policies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(NameMathTips, func(o Options) (Scheduler, error) { return NewMathTips(o), nil })
	r.mustRegister(NameMathTipsMultiTurn, func(o Options) (Scheduler, error) { return NewMathTipsMultiTurn(o), nil })
	return r
}

// Register adds a factory. Names must be non-empty and unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("register scheduler: empty name")
	}
	if f == nil {
		return fmt.Errorf("register scheduler %q: nil factory", name)
	}
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("register scheduler %q: already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) mustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for name, or an error wrapping
// ErrUnknownScheduler.
func (r *Registry) Lookup(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, unknownSchedulerError{name: name, known: r.Names()}
	}
	return f, nil
}

// New looks up name and builds the scheduler.
func (r *Registry) New(name string, opts Options) (Scheduler, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	s, err := f(opts)
	if err != nil {
		return nil, fmt.Errorf("build scheduler %q: %w", name, err)
	}
	return s, nil
}

// Names lists registered keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
