package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry routes resource kinds to providers. A kind's prefix before ":"
// names its provider: "aws:S3.Bucket" is served by the "aws" provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ResourceProvider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]ResourceProvider),
	}
}

// Register adds a provider under name, replacing any previous registration.
func (r *Registry) Register(name string, p ResourceProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (ResourceProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", name)
	}
	return p, nil
}

// ForKind returns the provider serving kind.
func (r *Registry) ForKind(kind string) (ResourceProvider, error) {
	name, err := Name(kind)
	if err != nil {
		return nil, err
	}
	return r.Get(name)
}

// SchemaFor resolves the schema of kind through its provider.
func (r *Registry) SchemaFor(kind string) (Schema, error) {
	p, err := r.ForKind(kind)
	if err != nil {
		return Schema{}, err
	}
	return p.Schema(kind)
}

// Name extracts the provider prefix of a kind string.
func Name(kind string) (string, error) {
	i := strings.Index(kind, ":")
	if i <= 0 {
		return "", fmt.Errorf("kind %q has no provider prefix", kind)
	}
	return kind[:i], nil
}
