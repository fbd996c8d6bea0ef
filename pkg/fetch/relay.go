package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"streamgate/pkg/logging"
	"streamgate/pkg/types"

	"golang.org/x/time/rate"
)

// Relay forwards a fetch through an external HTTP relay backend. The relay
// is a black box: it receives the target URL, the headers to present
// upstream, and a sticky session hint, and answers with the upstream body
// and a mirrored status code.
type Relay struct {
	target  types.ProxyTarget
	client  *http.Client
	limiter *rate.Limiter // nil unless this backend is metered (paid APIs)
	log     *logging.Logger
}

// NewRelay creates a relay fetcher for one configured backend.
func NewRelay(target types.ProxyTarget, timeout time.Duration, limiter *rate.Limiter, log *logging.Logger) *Relay {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{
		target: target,
		client: &http.Client{
			// Buffer for relay-side processing on top of the upstream fetch.
			Timeout: timeout + 10*time.Second,
		},
		limiter: limiter,
		log:     log.WithComponent("fetch-relay").WithRelay(target.Name),
	}
}

// Name identifies this relay in logs and metrics.
func (r *Relay) Name() string { return r.target.Name }

// Fetch asks the relay backend to fetch the target URL on our behalf.
func (r *Relay) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	relayURL, err := r.buildRelayURL(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building relay request: %w", err)
	}
	if r.target.AuthSecret != "" {
		httpReq.Header.Set("X-Relay-Key", r.target.AuthSecret)
	}

	headerJSON, err := json.Marshal(req.Headers)
	if err != nil {
		return nil, fmt.Errorf("encoding target headers: %w", err)
	}
	httpReq.Header.Set("X-Target-Headers", string(headerJSON))

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relay %s: %w", r.target.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("relay %s body: %w", r.target.Name, err)
	}

	r.log.Debug("relay response", "status", resp.StatusCode, "bytes", len(body))

	return &Result{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
	}, nil
}

func (r *Relay) buildRelayURL(req *Request) (string, error) {
	u, err := url.Parse(r.target.BaseURL)
	if err != nil {
		return "", fmt.Errorf("relay %s base url: %w", r.target.Name, err)
	}

	q := u.Query()
	q.Set("url", req.URL)
	if req.SessionID != "" {
		q.Set("session", req.SessionID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ Fetcher = (*Relay)(nil)
