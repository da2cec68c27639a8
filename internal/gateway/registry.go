package gateway

import (
	"sort"
	"sync"

	"github.com/vnmchuo/puqee/internal/provider"
)

// Registry maps provider names to adapters. It is safe for concurrent use;
// registrations may happen while calls are being dispatched.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]provider.Provider)}
}

// Register adds p under name, replacing any previous adapter.
func (r *Registry) Register(name string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

func (r *Registry) Resolve(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, &ProviderNotFoundError{Name: name}
	}
	return p, nil
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// drain empties the registry and returns what it held.
func (r *Registry) drain() map[string]provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.providers
	r.providers = make(map[string]provider.Provider)
	return old
}
