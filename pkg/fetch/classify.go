package fetch

import (
	"bytes"
	"net/http"
)

// Verdict is the chain's interpretation of one fetch attempt.
type Verdict int

const (
	// VerdictSuccess means the response is usable and the chain stops.
	VerdictSuccess Verdict = iota
	// VerdictRetryable means the next target in the chain should be tried.
	VerdictRetryable
	// VerdictTerminal means no further target can help (bad request etc.).
	VerdictTerminal
)

// Classifier decides whether an upstream response is usable. Providers
// plug in their own status codes and body markers; the built-in heuristics
// are not exhaustive.
type Classifier struct {
	// RetryStatuses are provider-specific codes meaning "expired token" or
	// "blocked from this IP", beyond the defaults of 403 and 429.
	RetryStatuses []int
	// BodyMarkers are substrings whose presence in a 2xx body marks the
	// response as an upstream error page rather than media.
	BodyMarkers [][]byte
}

// DefaultClassifier treats 403/429 as retryable and looks for the common
// offline/error markers providers embed in otherwise-200 responses.
func DefaultClassifier() Classifier {
	return Classifier{
		BodyMarkers: [][]byte{
			[]byte(`"error"`),
			[]byte("stream is offline"),
			[]byte("channel offline"),
		},
	}
}

// Classify maps a status code and (possibly truncated) body to a verdict.
func (c Classifier) Classify(status int, body []byte) Verdict {
	switch {
	case status >= 200 && status < 300:
		if c.bodyLooksBroken(body) {
			return VerdictRetryable
		}
		return VerdictSuccess
	case status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return VerdictRetryable
	case status >= 500:
		return VerdictRetryable
	}

	for _, s := range c.RetryStatuses {
		if status == s {
			return VerdictRetryable
		}
	}
	return VerdictTerminal
}

// bodyLooksBroken only inspects short text bodies; a real media segment is
// binary and large, and scanning it for markers would be both wasteful and
// prone to false positives.
func (c Classifier) bodyLooksBroken(body []byte) bool {
	const maxInspect = 2048
	if len(body) == 0 || len(body) > maxInspect {
		return false
	}
	lower := bytes.ToLower(body)
	for _, marker := range c.BodyMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}
