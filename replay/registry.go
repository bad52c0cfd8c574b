package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrFunctionNotFound is returned by Resolve when a qualified name cannot
// be loaded.
var ErrFunctionNotFound = errors.New("function not found")

// Func is the shape of a replayable function: arguments bound by name, one
// result, one error.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Target is a concrete, currently loadable function together with its
// declared parameter names.
type Target struct {
	Name   string
	Params []string
	Fn     Func
}

// Registry resolves qualified function names to live targets. Resolution
// happens fresh at replay time so replay always reflects current code.
type Registry interface {
	Resolve(name string) (Target, error)
}

// MapRegistry is the in-process Registry. The instrumentation runtime
// registers every function it wraps; tests and tools can register directly.
type MapRegistry struct {
	mu      sync.RWMutex
	targets map[string]Target
}

// NewRegistry creates an empty registry.
func NewRegistry() *MapRegistry {
	return &MapRegistry{targets: make(map[string]Target)}
}

// Register installs or replaces a target under its name.
func (r *MapRegistry) Register(target Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[target.Name] = target
}

// Resolve implements Registry.
func (r *MapRegistry) Resolve(name string) (Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.targets[name]
	if !ok {
		return Target{}, fmt.Errorf("resolve %q: %w", name, ErrFunctionNotFound)
	}
	return target, nil
}
