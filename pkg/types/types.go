// Package types defines core domain types used throughout the gateway.
package types

import (
	"io"
	"time"
)

// ResourceKind identifies what an inbound request is asking for.
type ResourceKind string

const (
	ResourceKindPlaylist ResourceKind = "playlist"
	ResourceKindKey      ResourceKind = "key"
	ResourceKindSegment  ResourceKind = "segment"
	ResourceKindAPICall  ResourceKind = "apiCall"
)

// ContentKind is the sniffed classification of an upstream response body.
type ContentKind string

const (
	ContentPlaylist        ContentKind = "playlist"
	ContentTransportStream ContentKind = "ts"
	ContentFragmentedMP4   ContentKind = "fmp4"
	ContentUnknown         ContentKind = "unknown"
)

// StreamRequest represents an inbound proxy request after parameter parsing.
// Created per HTTP call, never persisted.
type StreamRequest struct {
	Provider  string
	Kind      ResourceKind
	TargetURL string
	Headers   map[string]string
	ClientIP  string
}

// StreamResponse is the result of fetching (and possibly rewriting) an
// upstream resource.
type StreamResponse struct {
	ContentType string
	Headers     map[string]string
	Body        io.ReadCloser
	StatusCode  int
}

// ProxyTarget is one configured relay backend, iterated by the fallback
// fetch chain in priority order.
type ProxyTarget struct {
	Name       string
	BaseURL    string
	AuthSecret string
	Priority   int
}

// ServerKey is the resolved upstream CDN identity for a channel.
type ServerKey struct {
	Key          string
	SourceDomain string
	PlayerDomain string
	FetchedAt    time.Time
}

// TokenRecord is the resolution data stored behind an opaque stream token.
// Exactly one of ResolvedURL or ChannelRef is set (URL-resolved vs
// credential-resolved schema).
type TokenRecord struct {
	ResolvedURL string            `json:"url,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	ChannelRef  string            `json:"channel,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ClientIP    string            `json:"client_ip,omitempty"`
	CreatedAt   int64             `json:"created_at"`
}
