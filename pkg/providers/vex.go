package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streamgate/pkg/authbridge"
	"streamgate/pkg/logging"
)

const (
	vexSourcePath  = "/api/source/"
	vexMaxAttempts = 2
	vexBackoff     = 500 * time.Millisecond
	vexBodyCap     = 1 << 20
)

// ErrNoPlayableSource means every alternate server was tried and none
// produced a decrypted payload with a playable URL.
var ErrNoPlayableSource = errors.New("providers: no playable source")

// authSigner is the slice of the auth bridge the provider uses.
type authSigner interface {
	Sign(ctx context.Context, path string) (authbridge.Signature, error)
	Decrypt(ctx context.Context, payload []byte) ([]byte, error)
}

// Doer is the outbound HTTP capability the provider needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Vex serves streams from a provider whose API responses are encrypted and
// whose requests must be signed by its own compiled module. Channel
// lookups walk the provider's alternate servers with a short backoff until
// one yields a decrypted payload naming a playable URL.
type Vex struct {
	bridge  authSigner
	client  Doer
	servers []string
	backoff time.Duration
	log     *logging.Logger
}

// NewVex creates the vex provider over the given alternate server base
// URLs, tried in order.
func NewVex(bridge authSigner, client Doer, servers []string, log *logging.Logger) *Vex {
	return &Vex{
		bridge:  bridge,
		client:  client,
		servers: servers,
		backoff: vexBackoff,
		log:     log.WithProvider("vex"),
	}
}

func (v *Vex) Name() string { return "vex" }

// vexPayload is the decrypted source response.
type vexPayload struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Error   string            `json:"error"`
}

func (v *Vex) Resolve(ctx context.Context, channel, rawURL string) (*Resolution, error) {
	if rawURL != "" {
		return &Resolution{PlaylistURL: rawURL}, nil
	}
	if channel == "" {
		return nil, ErrMissingParams
	}

	path := vexSourcePath + channel
	var lastErr error

	for _, server := range v.servers {
		for attempt := 1; attempt <= vexMaxAttempts; attempt++ {
			res, err := v.fetchSource(ctx, server, path)
			if err == nil {
				res.ChannelRef = channel
				return res, nil
			}
			lastErr = err
			v.log.Debug("source fetch failed",
				"server", server,
				"attempt", attempt,
				"error", err)

			if attempt < vexMaxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(v.backoff * time.Duration(attempt)):
				}
			}
		}
	}

	return nil, fmt.Errorf("%w: channel %q: %v", ErrNoPlayableSource, channel, lastErr)
}

// fetchSource signs, performs and decrypts one source API call.
func (v *Vex) fetchSource(ctx context.Context, server, path string) (*Resolution, error) {
	sig, err := v.bridge.Sign(ctx, path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(server, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	for name, value := range sig.Headers() {
		req.Header.Set(name, value)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, vexBodyCap))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}

	plain, err := v.bridge.Decrypt(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("decrypting source payload: %w", err)
	}

	var payload vexPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("malformed source payload: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("source error: %s", payload.Error)
	}
	if !strings.HasPrefix(payload.URL, "http") {
		return nil, errors.New("source payload has no playable url")
	}

	return &Resolution{
		PlaylistURL: payload.URL,
		Headers:     payload.Headers,
	}, nil
}
