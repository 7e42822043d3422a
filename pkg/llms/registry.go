package llms

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/harvest-ai/harvest/pkg/config"
	"github.com/harvest-ai/harvest/pkg/registry"
)

// ProviderRegistry is a threadsafe store of named providers. Sessions
// share providers through it so concurrent sessions do not each open
// their own connection pool.
type ProviderRegistry struct {
	*registry.BaseRegistry[Provider]
	group singleflight.Group
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

func (r *ProviderRegistry) RegisterProvider(name string, provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	return r.Register(name, provider)
}

func (r *ProviderRegistry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("provider '%s' not registered (available: %v)", name, r.Names())
	}
	return provider, nil
}

// GetOrCreate returns the provider registered under settings.Provider,
// building and registering it on first use. Concurrent callers for the
// same provider share a single construction.
func (r *ProviderRegistry) GetOrCreate(settings *config.LLMSettings) (Provider, error) {
	if settings == nil {
		return nil, ErrNoProviderConfigured
	}

	name := string(settings.Provider)
	if provider, exists := r.Get(name); exists {
		return provider, nil
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		if provider, exists := r.Get(name); exists {
			return provider, nil
		}
		provider, err := NewProvider(settings)
		if err != nil {
			return nil, err
		}
		r.Replace(name, provider)
		return provider, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(Provider), nil
}

// CloseAll closes every registered provider and clears the registry.
func (r *ProviderRegistry) CloseAll() error {
	var firstErr error
	for _, provider := range r.List() {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.Clear()
	return firstErr
}
