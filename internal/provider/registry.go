package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

type registration struct {
	provider Provider
	priority int
	enabled  bool
	order    int
}

// Registry holds the registered providers and their mutable priority configuration.
// Candidate lists are computed on every call so configuration changes apply to the
// next request.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registration
	next    int
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registration)}
}

func (r *Registry) Register(p Provider, priority int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[p.Name()]; exists {
		return fmt.Errorf("provider %s already registered", p.Name())
	}
	r.entries[p.Name()] = &registration{provider: p, priority: priority, enabled: enabled, order: r.next}
	r.next++
	return nil
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return e.provider, nil
}

// Configure updates priority and/or enabled for a provider. Nil fields are left unchanged.
func (r *Registry) Configure(name string, priority *int, enabled *bool) (models.ProviderPriority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return models.ProviderPriority{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	if priority != nil {
		e.priority = *priority
	}
	if enabled != nil {
		e.enabled = *enabled
	}
	return models.ProviderPriority{Provider: name, Priority: e.priority, Enabled: e.enabled}, nil
}

// Priorities returns every registered provider's configuration ordered by priority.
func (r *Registry) Priorities() []models.ProviderPriority {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ProviderPriority, 0, len(r.entries))
	for _, e := range r.sorted(false) {
		out = append(out, models.ProviderPriority{Provider: e.provider.Name(), Priority: e.priority, Enabled: e.enabled})
	}
	return out
}

// Providers returns all registered providers, enabled or not, in priority order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.entries))
	for _, e := range r.sorted(false) {
		out = append(out, e.provider)
	}
	return out
}

// Candidates returns the enabled providers in the order they should be tried.
// An enabled preferred provider goes first; the rest follow by ascending priority.
func (r *Registry) Candidates(preferred string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := r.sorted(true)
	out := make([]Provider, 0, len(enabled))
	if pref, ok := r.entries[preferred]; ok && pref.enabled {
		out = append(out, pref.provider)
	}
	for _, e := range enabled {
		if e.provider.Name() == preferred {
			continue
		}
		out = append(out, e.provider)
	}
	return out
}

func (r *Registry) sorted(enabledOnly bool) []*registration {
	out := make([]*registration, 0, len(r.entries))
	for _, e := range r.entries {
		if enabledOnly && !e.enabled {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].order < out[j].order
	})
	return out
}
