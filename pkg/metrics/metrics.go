// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FetchAttempts counts upstream fetch attempts per target in the fallback
// chain. The "target" label is "direct" or the relay name; "outcome" is
// "success", "retryable" or "error".
var FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamgate_fetch_attempts_total",
	Help: "Upstream fetch attempts by target and outcome",
}, []string{"target", "outcome"})

// ResolverLookups counts server-key resolutions per channel outcome.
// "result" is "cache_hit", "resolved" (fresh lookup) or "exhausted".
var ResolverLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamgate_resolver_lookups_total",
	Help: "Server/key resolver lookups by result",
}, []string{"result"})

// TokensIssued counts stream tokens issued per provider.
var TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamgate_tokens_issued_total",
	Help: "Stream tokens issued",
}, []string{"provider"})

// TokensRejected counts token resolutions that failed, by reason
// ("missing", "corrupt", "ip_mismatch").
var TokensRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamgate_tokens_rejected_total",
	Help: "Stream token resolutions rejected",
}, []string{"reason"})

// BridgeResets counts foreign auth bridge reinitializations.
var BridgeResets = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamgate_authbridge_resets_total",
	Help: "Foreign auth bridge state resets after repeated failures",
})

// GateDenials counts requests rejected by the origin allow-list.
var GateDenials = promauto.NewCounter(prometheus.CounterOpts{
	Name: "streamgate_gate_denials_total",
	Help: "Requests rejected by the Origin/Referer allow-list",
})
