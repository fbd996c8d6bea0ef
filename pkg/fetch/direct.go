package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"streamgate/pkg/httpclient"
	"streamgate/pkg/logging"
)

// maxBodyBytes caps buffered upstream bodies. Live segments run a few MB;
// anything larger is not something this gateway should be relaying.
const maxBodyBytes = 32 << 20

// Direct performs the plain outbound fetch through the routed HTTP client.
type Direct struct {
	client  *httpclient.Client
	timeout time.Duration
	log     *logging.Logger
}

// NewDirect creates the direct fetcher with a per-call timeout.
func NewDirect(client *httpclient.Client, timeout time.Duration, log *logging.Logger) *Direct {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Direct{
		client:  client,
		timeout: timeout,
		log:     log.WithComponent("fetch-direct"),
	}
}

// Name identifies this fetcher in logs and metrics.
func (d *Direct) Name() string { return "direct" }

// Fetch performs one outbound request with the caller's headers.
func (d *Direct) Fetch(ctx context.Context, req *Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("direct fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return &Result{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
	}, nil
}

var _ Fetcher = (*Direct)(nil)
