package authbridge

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// NewHTTPTimeProbe measures the provider clock offset with one lightweight
// round trip: half the RTT is assumed symmetric, and the server's Date
// header anchors the far end. The offset is added to local time whenever
// the module or the signer needs provider time.
func NewHTTPTimeProbe(client Doer, timeURL string) TimeProbe {
	return func(ctx context.Context) (time.Duration, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, timeURL, nil)
		if err != nil {
			return 0, err
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("time probe: %w", err)
		}
		defer resp.Body.Close()
		rtt := time.Since(start)

		serverTime, err := http.ParseTime(resp.Header.Get("Date"))
		if err != nil {
			return 0, fmt.Errorf("time probe: no usable Date header: %w", err)
		}

		local := start.Add(rtt / 2)
		return serverTime.Sub(local), nil
	}
}

// Doer is the outbound HTTP capability the probe needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
