package authbridge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signing header names carried on authenticated provider calls.
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderSignature = "X-Signature"
)

const nonceBytes = 16

// Signature is one signed-request header set.
type Signature struct {
	APIKey    string
	Timestamp string
	Nonce     string
	Digest    string
}

// Headers returns the signature as request headers.
func (s Signature) Headers() map[string]string {
	return map[string]string{
		HeaderAPIKey:    s.APIKey,
		HeaderTimestamp: s.Timestamp,
		HeaderNonce:     s.Nonce,
		HeaderSignature: s.Digest,
	}
}

// sign builds the HMAC for one request path. The digest covers the
// timestamp, a fresh nonce and the path, keyed by the derived API key, so
// a captured header set replays for neither another path nor another
// moment.
func sign(apiKey, path string, at time.Time) (Signature, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return Signature{}, fmt.Errorf("generating nonce: %w", err)
	}

	ts := strconv.FormatInt(at.UnixMilli(), 10)
	nonceHex := hex.EncodeToString(nonce)

	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write([]byte(ts + ":" + nonceHex + ":" + path))

	return Signature{
		APIKey:    apiKey,
		Timestamp: ts,
		Nonce:     nonceHex,
		Digest:    hex.EncodeToString(mac.Sum(nil)),
	}, nil
}

// VerifySignature recomputes the digest for a header set. Test helper and
// reference for what upstream checks.
func VerifySignature(s Signature, path string) bool {
	mac := hmac.New(sha256.New, []byte(s.APIKey))
	mac.Write([]byte(s.Timestamp + ":" + s.Nonce + ":" + path))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(s.Digest))
}
