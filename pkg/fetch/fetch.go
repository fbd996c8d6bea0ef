// Package fetch implements the layered fallback fetch chain: a direct
// upstream fetch followed by configured relay backends in priority order.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"streamgate/pkg/logging"
	"streamgate/pkg/metrics"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrAllTargetsFailed is wrapped by the error returned when every target in
// the chain has been exhausted.
var ErrAllTargetsFailed = errors.New("all fetch targets failed")

// Request describes one upstream resource to fetch.
type Request struct {
	URL     string
	Headers map[string]string
	// SessionID is the sticky session hint passed to relays so related
	// calls keep one apparent client identity.
	SessionID string
}

// Result is a fully buffered upstream response. Bodies are buffered because
// the chain has to inspect them for embedded error markers before deciding
// the attempt succeeded.
type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
	Header      http.Header
	// Source names the target that produced this result ("direct" or a
	// relay name).
	Source string
}

// Fetcher is one transport option in the chain. Implementations are opaque
// to the chain; classification rules are the only shared contract.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// attempt records one failed try for the aggregated error.
type attempt struct {
	target string
	status int
	err    error
}

func (a attempt) String() string {
	if a.err != nil {
		return fmt.Sprintf("%s: %v", a.target, a.err)
	}
	return fmt.Sprintf("%s: status %d", a.target, a.status)
}

// Chain drives the direct fetcher and the ordered relay list. Relay
// attempts are sequential; later relays are costlier and must only be hit
// after cheaper options fail.
type Chain struct {
	direct Fetcher
	relays []Fetcher
	log    *logging.Logger
}

// NewChain creates a chain over a direct fetcher and priority-ordered relays.
func NewChain(direct Fetcher, relays []Fetcher, log *logging.Logger) *Chain {
	return &Chain{
		direct: direct,
		relays: relays,
		log:    log.WithComponent("fetch-chain"),
	}
}

// HasRelays reports whether any relay backend is configured.
func (c *Chain) HasRelays() bool {
	return len(c.relays) > 0
}

// Fetch tries the direct fetcher once, then each relay in order, stopping
// at the first response the classifier accepts. When everything fails it
// returns an error wrapping ErrAllTargetsFailed that names every attempt.
func (c *Chain) Fetch(ctx context.Context, req *Request, cls Classifier) (*Result, error) {
	targets := make([]Fetcher, 0, len(c.relays)+1)
	if c.direct != nil {
		targets = append(targets, c.direct)
	}
	targets = append(targets, c.relays...)

	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets configured", ErrAllTargetsFailed)
	}

	var attempts []attempt
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := target.Fetch(ctx, req)
		if err != nil {
			metrics.FetchAttempts.WithLabelValues(target.Name(), "error").Inc()
			c.log.WithRelay(target.Name()).WithURL(req.URL).Warn("fetch attempt failed", "error", err)
			attempts = append(attempts, attempt{target: target.Name(), err: err})
			continue
		}

		switch cls.Classify(res.StatusCode, res.Body) {
		case VerdictSuccess:
			metrics.FetchAttempts.WithLabelValues(target.Name(), "success").Inc()
			res.Source = target.Name()
			return res, nil
		case VerdictRetryable:
			metrics.FetchAttempts.WithLabelValues(target.Name(), "retryable").Inc()
			c.log.WithRelay(target.Name()).WithURL(req.URL).Debug("retryable upstream response", "status", res.StatusCode)
			attempts = append(attempts, attempt{target: target.Name(), status: res.StatusCode})
		case VerdictTerminal:
			metrics.FetchAttempts.WithLabelValues(target.Name(), "error").Inc()
			return nil, fmt.Errorf("terminal upstream status %d from %s", res.StatusCode, target.Name())
		}
	}

	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = a.String()
	}
	return nil, fmt.Errorf("%w: %s", ErrAllTargetsFailed, strings.Join(parts, "; "))
}
