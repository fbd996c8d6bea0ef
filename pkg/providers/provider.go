// Package providers maps gateway routes to upstream stream sources. Each
// provider knows how to turn a channel reference or raw URL into a
// fetchable upstream playlist location plus the headers the upstream
// expects.
//
// To add a new provider:
// 1. Create a new file in this package implementing Provider.
// 2. Register it in the Registry built by the application wiring.
package providers

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownProvider means no provider is registered under the requested
// route name.
var ErrUnknownProvider = errors.New("providers: unknown provider")

// ErrMissingParams means the request carried neither a channel reference
// nor a target URL the provider could use.
var ErrMissingParams = errors.New("providers: missing channel or url parameter")

// Resolution is the outcome of provider resolution: where the playlist
// lives and what headers upstream expects to see.
type Resolution struct {
	PlaylistURL string
	Headers     map[string]string
	// ChannelRef is the logical channel this resolution came from, empty
	// for raw-URL requests. Carried into issued tokens.
	ChannelRef string
}

// Provider resolves stream requests for one gateway route.
type Provider interface {
	// Name returns the route name, e.g. "tv".
	Name() string

	// Resolve turns a channel reference or an explicit target URL into an
	// upstream resolution. Exactly one of channel and rawURL is usually
	// set; rawURL wins when both are.
	Resolve(ctx context.Context, channel, rawURL string) (*Resolution, error)
}

// Invalidator is implemented by providers whose resolutions are cached and
// can go stale. The HTTP layer calls it when a resolved upstream fails.
type Invalidator interface {
	Invalidate(channel string)
}

// Registry holds the active providers keyed by route name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its route name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider for a route name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names returns the registered route names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
