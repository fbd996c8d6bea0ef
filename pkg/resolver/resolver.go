// Package resolver maps logical channel keys to upstream server
// assignments. Lookups go out to a list of mirror domains and successful
// results are cached with a TTL so a popular channel costs one lookup per
// window, not one per viewer.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/maypok86/otter"

	"streamgate/pkg/logging"
	"streamgate/pkg/metrics"
	"streamgate/pkg/types"
)

// ErrExhausted means every mirror failed to produce a server key. Terminal
// for the current request; the cache stays empty so the next request
// retries fresh.
var ErrExhausted = errors.New("resolver: all mirrors exhausted")

const (
	lookupPath     = "/server_lookup.php?channel_id="
	maxCachedKeys  = 4096
	defaultUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	lookupBodyCap  = 4096
	requestTimeout = 10 * time.Second
)

// Doer is the outbound HTTP capability the resolver needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver performs and caches server-key lookups.
type Resolver struct {
	client  Doer
	mirrors []string
	cache   otter.Cache[string, types.ServerKey]
	log     *logging.Logger
}

// New creates a resolver over the given mirror base URLs. ttl bounds how
// long a resolved key is reused before a fresh lookup.
func New(client Doer, mirrors []string, ttl time.Duration, log *logging.Logger) (*Resolver, error) {
	cache, err := otter.MustBuilder[string, types.ServerKey](maxCachedKeys).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building resolver cache: %w", err)
	}

	return &Resolver{
		client:  client,
		mirrors: mirrors,
		cache:   cache,
		log:     log.WithComponent("resolver"),
	}, nil
}

// Resolve returns the server assignment for a channel, from cache when the
// TTL window allows, otherwise by querying mirrors in order and accepting
// the first well-formed answer.
func (r *Resolver) Resolve(ctx context.Context, channelKey string) (types.ServerKey, error) {
	if cached, found := r.cache.Get(channelKey); found {
		metrics.ResolverLookups.WithLabelValues("cache_hit").Inc()
		return cached, nil
	}

	for _, mirror := range r.mirrors {
		key, err := r.lookup(ctx, mirror, channelKey)
		if err != nil {
			r.log.Debug("mirror lookup failed",
				"mirror", mirror,
				"channel", channelKey,
				"error", err)
			continue
		}

		resolved := types.ServerKey{
			Key:          key,
			SourceDomain: mirror,
			FetchedAt:    time.Now(),
		}
		r.cache.Set(channelKey, resolved)
		metrics.ResolverLookups.WithLabelValues("resolved").Inc()
		r.log.Info("channel resolved",
			"channel", channelKey,
			"server", key,
			"mirror", mirror)
		return resolved, nil
	}

	metrics.ResolverLookups.WithLabelValues("exhausted").Inc()
	return types.ServerKey{}, fmt.Errorf("resolving channel %q: %w", channelKey, ErrExhausted)
}

// lookup queries one mirror. Mirrors answer either with a bare key string
// or with a JSON object carrying "server" or "error".
func (r *Resolver) lookup(ctx context.Context, mirror, channelKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	lookupURL := strings.TrimSuffix(mirror, "/") + lookupPath + channelKey
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", defaultUA)
	req.Header.Set("Referer", strings.TrimSuffix(mirror, "/")+"/")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mirror returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, lookupBodyCap))
	if err != nil {
		return "", err
	}

	key := strings.TrimSpace(string(body))
	if strings.HasPrefix(key, "{") {
		var parsed struct {
			Server string `json:"server"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("malformed lookup response: %w", err)
		}
		if parsed.Error != "" {
			return "", fmt.Errorf("mirror error: %s", parsed.Error)
		}
		if parsed.Server == "" {
			return "", errors.New("lookup response missing server")
		}
		return parsed.Server, nil
	}

	if key == "" {
		return "", errors.New("empty lookup response")
	}
	return key, nil
}

// Invalidate drops a channel's cached assignment, forcing the next Resolve
// to perform a fresh lookup. Used when a resolved upstream starts failing.
func (r *Resolver) Invalidate(channelKey string) {
	r.cache.Delete(channelKey)
}
