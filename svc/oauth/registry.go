package oauth

import (
	"fmt"
	"slices"
)

// NewProvider builds the adapter selected by cfg.Kind.
func NewProvider(cfg ProviderConfig, opts ...ProviderOption) (Provider, error) {
	switch cfg.Kind {
	case KindGoogle:
		return NewGoogleProvider(cfg, opts...)
	case KindGitHub:
		return NewGitHubProvider(cfg, opts...)
	case KindMicrosoft:
		return NewMicrosoftProvider(cfg, opts...)
	case KindFacebook:
		return NewFacebookProvider(cfg, opts...)
	case KindGeneric:
		return NewGenericProvider(cfg, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q for %s", ErrInvalidProvider, cfg.Kind, cfg.ID)
	}
}

// Registry is the immutable set of configured providers. It is built once
// at startup and passed explicitly to whoever needs it.
type Registry struct {
	providers map[string]Provider
	disabled  map[string]bool
	order     []string
}

// RegistryOption adds an entry to a registry under construction.
type RegistryOption func(*Registry) error

// WithProvider registers an enabled provider.
func WithProvider(p Provider) RegistryOption {
	return func(r *Registry) error {
		return r.add(p, false)
	}
}

// WithDisabledProvider registers a provider that is known but refuses flows.
func WithDisabledProvider(p Provider) RegistryOption {
	return func(r *Registry) error {
		return r.add(p, true)
	}
}

// NewRegistry builds a registry. Duplicate ids are rejected.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Provider),
		disabled:  make(map[string]bool),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(p Provider, disabled bool) error {
	if p == nil || p.ID() == "" {
		return fmt.Errorf("%w: provider without id", ErrInvalidProvider)
	}
	if _, ok := r.providers[p.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.ID())
	}
	r.providers[p.ID()] = p
	r.disabled[p.ID()] = disabled
	r.order = append(r.order, p.ID())
	return nil
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	if r.disabled[id] {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, id)
	}
	return p, nil
}

// Lookup returns a provider whether or not it is enabled. Token refresh
// for existing accounts keeps working after a provider is disabled.
func (r *Registry) Lookup(id string) (Provider, bool) {
	p, ok := r.providers[id]
	return p, ok
}

// IDs lists enabled provider ids in registration order.
func (r *Registry) IDs() []string {
	return slices.DeleteFunc(slices.Clone(r.order), func(id string) bool {
		return r.disabled[id]
	})
}
