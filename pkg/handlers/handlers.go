// Package handlers provides the HTTP handlers for the gateway API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamgate/pkg/authbridge"
	"streamgate/pkg/fetch"
	"streamgate/pkg/httpclient"
	"streamgate/pkg/logging"
	"streamgate/pkg/providers"
	"streamgate/pkg/resolver"
	"streamgate/pkg/services"
	"streamgate/pkg/token"
	"streamgate/pkg/types"
)

// Cache lifetimes for proxied binary resources. Keys rotate with the
// stream; segments are immutable once published.
const (
	keyCacheControl     = "public, max-age=10"
	segmentCacheControl = "public, max-age=300"
)

// Handlers contains all gateway HTTP handlers.
type Handlers struct {
	gateway       *services.Gateway
	providerNames []string
	trusted       []*net.IPNet
	log           *logging.Logger
}

// New creates a Handlers instance serving the given provider routes.
// trustedProxies lists the peers (IPs or CIDRs) whose forwarding headers
// are believed when binding tokens to client addresses.
func New(gateway *services.Gateway, providerNames, trustedProxies []string, log *logging.Logger) *Handlers {
	return &Handlers{
		gateway:       gateway,
		providerNames: providerNames,
		trusted:       parseTrustedProxies(trustedProxies),
		log:           log.WithComponent("handlers"),
	}
}

func parseTrustedProxies(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return nets
}

// RegisterRoutes registers all gateway routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", h.handleIndex)
	mux.HandleFunc("GET /favicon.ico", h.handleFavicon)
	mux.Handle("GET /metrics", promhttp.Handler())

	for _, name := range h.providerNames {
		name := name
		mux.HandleFunc("GET /"+name+"/health", h.providerHealth(name))
		mux.HandleFunc("GET /"+name, h.providerPlaylist(name))
		mux.HandleFunc("GET /"+name+"/{$}", h.providerPlaylist(name))
		mux.HandleFunc("GET /"+name+"/key", h.providerBinary(name, keyCacheControl))
		mux.HandleFunc("GET /"+name+"/segment", h.providerBinary(name, segmentCacheControl))
		mux.HandleFunc("POST /"+name+"/token", h.providerToken(name))
		mux.HandleFunc("GET /"+name+"/stream", h.providerStream(name))
	}
}

// handleIndex reports the service and its routes.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "streamgate",
		"providers": h.providerNames,
	})
}

func (h *Handlers) handleFavicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// providerHealth reports per-provider readiness for probes.
func (h *Handlers) providerHealth(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"provider":  name,
			"relays":    h.gateway.HasRelays(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// providerPlaylist fetches and rewrites a playlist for ?channel= or ?url=.
func (h *Handlers) providerPlaylist(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		rawURL := r.URL.Query().Get("url")
		if channel == "" && rawURL == "" {
			h.writeError(w, http.StatusBadRequest, "channel or url parameter required")
			return
		}

		resp, err := h.gateway.Playlist(r.Context(), name, channel, rawURL, httpclient.ParseHeaderParams(r.URL.Query()))
		if err != nil {
			h.writeUpstreamError(w, r, name, err)
			return
		}

		h.writeStreamResponse(w, resp, "")
	}
}

// providerBinary proxies key and segment fetches.
func (h *Handlers) providerBinary(name, cacheControl string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawURL := r.URL.Query().Get("url")
		if rawURL == "" {
			h.writeError(w, http.StatusBadRequest, "url parameter required")
			return
		}

		resp, err := h.gateway.Binary(r.Context(), name, rawURL, httpclient.ParseHeaderParams(r.URL.Query()))
		if err != nil {
			h.writeUpstreamError(w, r, name, err)
			return
		}

		h.writeStreamResponse(w, resp, cacheControl)
	}
}

// tokenRequest is the POST /{provider}/token body.
type tokenRequest struct {
	URL     string `json:"url"`
	Channel string `json:"channel"`
	// ClientBindingKey optionally binds the token to an address other than
	// the caller's, for servers issuing tokens on a viewer's behalf.
	ClientBindingKey string `json:"clientBindingKey"`
}

// providerToken issues an opaque IP-bound stream token.
func (h *Handlers) providerToken(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if req.URL == "" && req.Channel == "" {
			h.writeError(w, http.StatusBadRequest, "url or channel required")
			return
		}

		bindIP := req.ClientBindingKey
		if bindIP == "" {
			bindIP = h.clientIP(r)
		}

		tok, err := h.gateway.IssueToken(r.Context(), name, req.Channel, req.URL, bindIP, nil)
		if err != nil {
			h.writeUpstreamError(w, r, name, err)
			return
		}

		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"streamUrl": "/" + name + "/stream?t=" + tok,
		})
	}
}

// providerStream redeems a token and proxies the stream behind it.
func (h *Handlers) providerStream(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("t")
		if tok == "" {
			h.writeError(w, http.StatusBadRequest, "t parameter required")
			return
		}

		resp, err := h.gateway.Stream(r.Context(), tok, h.clientIP(r))
		if err != nil {
			if errors.Is(err, token.ErrInvalid) {
				h.writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			h.writeUpstreamError(w, r, name, err)
			return
		}

		h.writeStreamResponse(w, resp, "")
	}
}

// writeUpstreamError maps domain failures onto the response status
// taxonomy: client errors 400/401, exhausted upstreams 502, and 503 when
// the direct fetch failed with no relay to fall back to.
func (h *Handlers) writeUpstreamError(w http.ResponseWriter, r *http.Request, provider string, err error) {
	log := h.log.WithProvider(provider).WithError(err)

	switch {
	case errors.Is(err, providers.ErrMissingParams):
		h.writeError(w, http.StatusBadRequest, "missing channel or url parameter")
	case errors.Is(err, token.ErrInvalid):
		h.writeError(w, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, fetch.ErrAllTargetsFailed):
		if !h.gateway.HasRelays() {
			log.Warn("direct fetch failed with no relay configured", "path", r.URL.Path)
			h.writeError(w, http.StatusServiceUnavailable, "upstream unavailable, no relay configured")
			return
		}
		log.Error("all fetch targets exhausted", "path", r.URL.Path)
		h.writeError(w, http.StatusBadGateway, "upstream unavailable")
	case errors.Is(err, resolver.ErrExhausted),
		errors.Is(err, providers.ErrNoPlayableSource),
		errors.Is(err, authbridge.ErrNotReady):
		log.Error("upstream resolution failed", "path", r.URL.Path)
		h.writeError(w, http.StatusBadGateway, "upstream resolution failed")
	default:
		log.Error("request failed", "path", r.URL.Path)
		h.writeError(w, http.StatusBadGateway, "upstream error")
	}
}

// writeStreamResponse copies a proxied upstream response to the client.
func (h *Handlers) writeStreamResponse(w http.ResponseWriter, resp *types.StreamResponse, cacheControl string) {
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.ContentType)
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Debug("client disconnected mid-response", "error", err)
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// clientIP extracts the requesting address. The forwarding header is
// honored only when the direct peer is a trusted proxy; otherwise a
// caller reaching the gateway directly could bind tokens to an address
// it does not hold.
func (h *Handlers) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" && h.trustedPeer(host) {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	return host
}

func (h *Handlers) trustedPeer(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range h.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
