package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Factory instantiates a backend from the ordered constructor arguments of
// a mount configuration record.
type Factory func(ctx context.Context, args []string) (Backend, error)

// Registry maps backend names (the "backend class" of a mount) to their
// factories. Mounts consult it when they are created, so an unknown name is
// rejected at configuration time instead of at first use.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named factory. Names are case-insensitive.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return Errorf("register", "", ErrInvalidParameters, "empty backend name")
	}
	if factory == nil {
		return Errorf("register", "", ErrInvalidParameters, "nil factory for backend %q", name)
	}

	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return Errorf("register", "", ErrInvalidParameters, "backend %q already registered", name)
	}
	r.factories[key] = factory
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[strings.ToLower(name)]
	return f, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create looks up name and runs its factory.
func (r *Registry) Create(ctx context.Context, name string, args []string) (Backend, error) {
	factory, ok := r.Lookup(name)
	if !ok {
		return nil, Errorf("create", "", ErrInvalidParameters, "unknown backend %q", name)
	}
	return factory(ctx, args)
}

// ParseArguments splits constructor arguments into positional values and
// "key=value" options. Keys are lower-cased; later keys win.
func ParseArguments(args []string) (positional []string, options map[string]string) {
	options = make(map[string]string)
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if !found || key == "" || strings.ContainsAny(key, "/ ") {
			positional = append(positional, arg)
			continue
		}
		options[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return positional, options
}

// DecodeOptions decodes string options into a struct tagged with
// `mapstructure`. Numeric and boolean fields are converted from strings.
func DecodeOptions(options map[string]string, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return fmt.Errorf("failed to build options decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return NewError("decode", "", ErrInvalidParameters, err)
	}
	return nil
}
