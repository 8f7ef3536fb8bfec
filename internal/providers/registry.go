package providers

import "fmt"

// Registry resolves a session's configured provider name to a
// Provider instance. It is built once at startup from whichever
// providers have credentials configured and is read-only thereafter.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

// NewRegistry builds a Registry from the given providers, keyed by
// their own Name(). defaultName selects which one Resolve("") returns;
// it must be one of the given providers' names.
func NewRegistry(defaultName string, providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	if _, ok := r.providers[defaultName]; !ok {
		return nil, fmt.Errorf("providers: default provider %q was not among the registered providers", defaultName)
	}
	r.defaultProvider = defaultName
	return r, nil
}

// Resolve returns the provider registered under name, or the default
// provider when name is empty. Returns an error if name is non-empty
// and unregistered.
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		name = r.defaultProvider
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("providers: unknown provider %q", name)
	}
	return p, nil
}

// Names lists every registered provider name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
