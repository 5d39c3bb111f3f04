package binding

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnavailable is returned by Open when no provider yields a binding.
var ErrUnavailable = errors.New("native binding unavailable")

// Provider acquires a binding. It returns an error when the binding cannot
// be loaded in this process.
type Provider func() (Binding, error)

// Registry holds binding providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under the given name, replacing any previous one.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open tries providers in name order and returns the first binding acquired
// along with its provider name. When none succeeds the error wraps
// ErrUnavailable and every provider's failure.
func (r *Registry) Open() (Binding, string, error) {
	names := r.Names()
	if len(names) == 0 {
		return nil, "", fmt.Errorf("%w: no provider registered", ErrUnavailable)
	}

	errs := []error{ErrUnavailable}
	for _, name := range names {
		r.mu.RLock()
		p := r.providers[name]
		r.mu.RUnlock()

		b, err := acquire(p)
		if err == nil && b != nil {
			return b, name, nil
		}
		if err == nil {
			err = errors.New("provider returned no binding")
		}
		errs = append(errs, fmt.Errorf("provider %q: %w", name, err))
	}
	return nil, "", errors.Join(errs...)
}

// acquire calls p, reporting a panic as an error. A binding that fails to
// load often panics from its init path.
func acquire(p Provider) (b Binding, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return p()
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that Register adds to.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a provider to the default registry. Packages that ship a
// native binding call it from init.
func Register(name string, p Provider) {
	defaultRegistry.Register(name, p)
}
