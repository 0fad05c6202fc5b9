package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	pb "github.com/picklr-io/craftstack/pkg/provider"
	"github.com/picklr-io/craftstack/providers/aws"
	"github.com/picklr-io/craftstack/providers/mock"
)

// Settings configure backends that talk to a cloud.
type Settings struct {
	Region  string
	Profile string
}

// Factory constructs a backend.
type Factory func(ctx context.Context, s Settings) (pb.Backend, error)

// Registry manages the lifecycle of backends.
type Registry struct {
	mu        sync.RWMutex
	settings  Settings
	factories map[string]Factory
	backends  map[string]pb.Backend
}

// NewRegistry returns a registry that knows the built-in backends.
func NewRegistry(s Settings) *Registry {
	r := &Registry{
		settings:  s,
		factories: make(map[string]Factory),
		backends:  make(map[string]pb.Backend),
	}
	r.Register("mock", func(context.Context, Settings) (pb.Backend, error) {
		return mock.New(), nil
	})
	r.Register("aws", func(ctx context.Context, s Settings) (pb.Backend, error) {
		return aws.New(ctx, s.Region, s.Profile)
	})
	return r
}

// Register adds or replaces a backend factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.backends, name)
}

// Load initializes the named backend once and returns it.
func (r *Registry) Load(ctx context.Context, name string) (pb.Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.backends[name]; ok {
		return b, nil
	}

	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	b, err := f(ctx, r.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to load backend %s: %w", name, err)
	}
	r.backends[name] = b
	return b, nil
}

// Get returns a loaded backend.
func (r *Registry) Get(name string) (pb.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("backend not loaded: %s", name)
	}
	return b, nil
}

// Names lists the known backends in sorted order.
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
