// Package gate validates Origin/Referer headers against a configured
// allow-list before any upstream work happens.
package gate

import (
	"errors"
	"strings"

	"streamgate/pkg/logging"
	"streamgate/pkg/urlutil"
)

// ErrDenied is returned when neither Origin nor Referer matches the
// allow-list.
var ErrDenied = errors.New("origin not allowed")

// Gate checks inbound Origin/Referer headers against an allow-list.
type Gate struct {
	allowed []string
	log     *logging.Logger
}

// New creates a gate from a list of allowed host patterns. A pattern is an
// exact hostname, a subdomain suffix (leading dot, e.g. ".example.com"), or
// "localhost" which matches any host containing it.
func New(allowed []string, log *logging.Logger) *Gate {
	normalized := make([]string, 0, len(allowed))
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			normalized = append(normalized, a)
		}
	}
	return &Gate{
		allowed: normalized,
		log:     log.WithComponent("gate"),
	}
}

// Check validates the request's Origin and Referer headers.
//
// Requests with neither header are allowed: those are the product's own
// backend calling server-to-server, which carries its own shared secret and
// never sets browser headers. Browsers always send at least one of the two,
// so redistribution through a third-party page still gets caught.
func (g *Gate) Check(origin, referer string) error {
	if origin == "" && referer == "" {
		return nil
	}

	if origin != "" && g.hostAllowed(urlutil.HostOf(origin)) {
		return nil
	}

	if referer != "" && g.hostAllowed(urlutil.HostOf(referer)) {
		return nil
	}

	g.log.Warn("request blocked by allow-list", "origin", origin, "referer", referer)
	return ErrDenied
}

func (g *Gate) hostAllowed(host string) bool {
	if host == "" {
		return false
	}
	for _, pattern := range g.allowed {
		switch {
		case pattern == "localhost":
			if strings.Contains(host, "localhost") || host == "127.0.0.1" {
				return true
			}
		case strings.HasPrefix(pattern, "."):
			if strings.HasSuffix(host, pattern) || host == pattern[1:] {
				return true
			}
		default:
			if host == pattern {
				return true
			}
		}
	}
	return false
}
