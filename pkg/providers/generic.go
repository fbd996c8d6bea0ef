package providers

import "context"

// Generic is the passthrough provider: the caller supplies the full target
// URL and any upstream headers arrive as h_ parameters handled by the HTTP
// layer. Registered as the fallback route.
type Generic struct {
	name string
}

// NewGeneric creates a passthrough provider under the given route name.
func NewGeneric(name string) *Generic {
	return &Generic{name: name}
}

func (g *Generic) Name() string { return g.name }

func (g *Generic) Resolve(_ context.Context, _, rawURL string) (*Resolution, error) {
	if rawURL == "" {
		return nil, ErrMissingParams
	}
	return &Resolution{PlaylistURL: rawURL}, nil
}
