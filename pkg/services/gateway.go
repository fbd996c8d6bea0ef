// Package services contains the request orchestration layer between the
// HTTP handlers and the domain components.
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"

	"streamgate/pkg/fetch"
	"streamgate/pkg/logging"
	"streamgate/pkg/playlist"
	"streamgate/pkg/providers"
	"streamgate/pkg/session"
	"streamgate/pkg/sniff"
	"streamgate/pkg/token"
	"streamgate/pkg/types"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Gateway drives one stream request end to end: provider resolution, the
// fallback fetch chain, content sniffing and playlist rewriting.
type Gateway struct {
	registry   *providers.Registry
	chain      *fetch.Chain
	classifier fetch.Classifier
	rewriter   *playlist.Rewriter
	tokens     *token.Service
	sessions   *session.Manager
	log        *logging.Logger
}

// NewGateway wires the orchestration layer.
func NewGateway(
	registry *providers.Registry,
	chain *fetch.Chain,
	classifier fetch.Classifier,
	rewriter *playlist.Rewriter,
	tokens *token.Service,
	sessions *session.Manager,
	log *logging.Logger,
) *Gateway {
	return &Gateway{
		registry:   registry,
		chain:      chain,
		classifier: classifier,
		rewriter:   rewriter,
		tokens:     tokens,
		sessions:   sessions,
		log:        log.WithComponent("gateway"),
	}
}

// HasRelays reports whether any relay backend is configured behind the
// direct fetcher.
func (s *Gateway) HasRelays() bool {
	return s.chain.HasRelays()
}

// Playlist resolves and fetches a provider playlist and rewrites it to
// route through the gateway.
func (s *Gateway) Playlist(ctx context.Context, providerName, channel, rawURL string, extraHeaders map[string]string) (*types.StreamResponse, error) {
	resolution, err := s.resolve(ctx, providerName, channel, rawURL)
	if err != nil {
		return nil, err
	}

	headers := mergeHeaders(resolution.Headers, extraHeaders)
	result, err := s.fetch(ctx, providerName, resolution, headers)
	if err != nil {
		return nil, err
	}

	detected := sniff.Detect(result.Body, result.ContentType, resolution.PlaylistURL)
	if detected.Kind != types.ContentPlaylist {
		s.log.Warn("expected playlist, passing body through",
			"provider", providerName,
			"url", logging.TruncateURL(resolution.PlaylistURL),
			"detected", string(detected.Kind))
		return bufferedResponse(result.StatusCode, detected.ContentType, result.Body), nil
	}

	rewritten := s.rewriter.Rewrite(result.Body, playlist.Context{
		Provider: providerName,
		BaseURL:  resolution.PlaylistURL,
		Headers:  headers,
	})
	return bufferedResponse(result.StatusCode, playlistContentType, rewritten), nil
}

// Binary proxies a key or segment fetch. The target URL always comes from
// a previously rewritten playlist.
func (s *Gateway) Binary(ctx context.Context, providerName, rawURL string, headers map[string]string) (*types.StreamResponse, error) {
	target := DecodeURL(rawURL)
	if target == "" {
		return nil, providers.ErrMissingParams
	}

	result, err := s.chain.Fetch(ctx, &fetch.Request{
		URL:       target,
		Headers:   headers,
		SessionID: s.sessions.Current(),
	}, s.classifier)
	if err != nil {
		return nil, err
	}

	detected := sniff.Detect(result.Body, result.ContentType, target)
	return bufferedResponse(result.StatusCode, detected.ContentType, result.Body), nil
}

// IssueToken resolves a stream and stores the resolution behind an opaque
// token bound to the caller's IP. The resolved location never reaches the
// client.
func (s *Gateway) IssueToken(ctx context.Context, providerName, channel, rawURL, clientIP string, extraHeaders map[string]string) (string, error) {
	resolution, err := s.resolve(ctx, providerName, channel, rawURL)
	if err != nil {
		return "", err
	}

	return s.tokens.Issue(ctx, types.TokenRecord{
		ResolvedURL: resolution.PlaylistURL,
		Provider:    providerName,
		ChannelRef:  resolution.ChannelRef,
		Headers:     mergeHeaders(resolution.Headers, extraHeaders),
		ClientIP:    clientIP,
	})
}

// Stream redeems a token and serves the stream behind it. Returns
// token.ErrInvalid for absent, expired or wrong-IP tokens.
func (s *Gateway) Stream(ctx context.Context, tok, clientIP string) (*types.StreamResponse, error) {
	record, err := s.tokens.Resolve(ctx, tok, clientIP)
	if err != nil {
		return nil, err
	}

	result, err := s.chain.Fetch(ctx, &fetch.Request{
		URL:       record.ResolvedURL,
		Headers:   record.Headers,
		SessionID: s.sessions.Current(),
	}, s.classifier)
	if err != nil {
		return nil, err
	}

	detected := sniff.Detect(result.Body, result.ContentType, record.ResolvedURL)
	if detected.Kind == types.ContentPlaylist {
		rewritten := s.rewriter.Rewrite(result.Body, playlist.Context{
			Provider: record.Provider,
			BaseURL:  record.ResolvedURL,
			Headers:  record.Headers,
		})
		return bufferedResponse(result.StatusCode, playlistContentType, rewritten), nil
	}

	return bufferedResponse(result.StatusCode, detected.ContentType, result.Body), nil
}

// resolve runs provider resolution with URL decoding applied first.
func (s *Gateway) resolve(ctx context.Context, providerName, channel, rawURL string) (*providers.Resolution, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return nil, err
	}
	return p.Resolve(ctx, channel, DecodeURL(rawURL))
}

// fetch runs the chain and invalidates the provider's cached resolution
// when the fetch fails, so the next request re-resolves fresh.
func (s *Gateway) fetch(ctx context.Context, providerName string, resolution *providers.Resolution, headers map[string]string) (*fetch.Result, error) {
	result, err := s.chain.Fetch(ctx, &fetch.Request{
		URL:       resolution.PlaylistURL,
		Headers:   headers,
		SessionID: s.sessions.Current(),
	}, s.classifier)
	if err != nil && resolution.ChannelRef != "" {
		if p, getErr := s.registry.Get(providerName); getErr == nil {
			if inv, ok := p.(providers.Invalidator); ok {
				inv.Invalidate(resolution.ChannelRef)
			}
		}
		return nil, fmt.Errorf("fetching resolved playlist: %w", err)
	}
	return result, err
}

// DecodeURL unwraps percent-encoded and base64-encoded target URLs.
// Query parsing has already percent-decoded the value once; a plain
// absolute URL is returned as-is so literal %XX sequences inside it
// (encoded CDN tokens) survive intact.
func DecodeURL(urlStr string) string {
	if urlStr == "" {
		return urlStr
	}
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr
	}

	if decoded, err := url.QueryUnescape(urlStr); err == nil &&
		(strings.HasPrefix(decoded, "http://") || strings.HasPrefix(decoded, "https://")) {
		return decoded
	}

	padded := urlStr
	switch len(urlStr) % 4 {
	case 2:
		padded += "=="
	case 3:
		padded += "="
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding} {
		if decoded, err := enc.DecodeString(padded); err == nil {
			decodedStr := string(decoded)
			if strings.HasPrefix(decodedStr, "http://") || strings.HasPrefix(decodedStr, "https://") {
				return decodedStr
			}
		}
	}

	return urlStr
}

func mergeHeaders(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func bufferedResponse(status int, contentType string, body []byte) *types.StreamResponse {
	return &types.StreamResponse{
		StatusCode:  status,
		ContentType: contentType,
		Body:        io.NopCloser(bytes.NewReader(body)),
	}
}
