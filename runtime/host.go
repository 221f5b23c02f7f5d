package runtime

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/entity"
	"github.com/wippyai/script-bridge/errors"
)

// BindingRegistry holds the named host operations managed code may call.
// Bindings registered before the registry is activated are queued and
// become callable on activation.
type BindingRegistry struct {
	funcs   map[string]engine.NativeFunc
	pending map[string]engine.NativeFunc
	active  bool
	mu      sync.RWMutex
}

func NewBindingRegistry() *BindingRegistry {
	return &BindingRegistry{
		funcs:   make(map[string]engine.NativeFunc),
		pending: make(map[string]engine.NativeFunc),
	}
}

// Register adds or replaces the binding called name.
func (r *BindingRegistry) Register(name string, fn engine.NativeFunc) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "binding name cannot be empty")
	}
	if fn == nil {
		return errors.Registration(errors.PhaseHost, name, errors.InvalidInput(errors.PhaseHost, "nil function"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		r.pending[name] = fn
		Logger().Debug("method binding queued", zap.String("name", name))
		return nil
	}
	if _, ok := r.funcs[name]; ok {
		Logger().Debug("method binding replaced", zap.String("name", name))
	}
	r.funcs[name] = fn
	return nil
}

// RegisterAll registers every binding in bs, stopping at the first error.
func (r *BindingRegistry) RegisterAll(bs []entity.Binding) error {
	for _, b := range bs {
		if err := r.Register(b.Name, b.Fn); err != nil {
			return err
		}
	}
	return nil
}

// activate flushes queued bindings and returns how many there were.
func (r *BindingRegistry) activate() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pending)
	for name, fn := range r.pending {
		r.funcs[name] = fn
	}
	clear(r.pending)
	r.active = true
	return n
}

// Active reports whether queued bindings have been flushed.
func (r *BindingRegistry) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Pending returns the number of bindings waiting for activation.
func (r *BindingRegistry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Has reports whether a callable binding is registered under name.
func (r *BindingRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Names returns the callable binding names, sorted.
func (r *BindingRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallNative implements engine.NativeCaller.
func (r *BindingRegistry) CallNative(ctx context.Context, name string, args ...any) (any, error) {
	r.mu.RLock()
	active := r.active
	fn, ok := r.funcs[name]
	r.mu.RUnlock()

	if !active {
		return nil, errors.NotInitialized(errors.PhaseHost, "method bindings")
	}
	if !ok {
		return nil, errors.NotFound(errors.PhaseHost, "method binding", name)
	}
	return fn(ctx, args...)
}
