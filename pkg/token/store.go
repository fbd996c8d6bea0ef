// Package token issues and resolves short-lived opaque stream tokens.
// A token stands in for a resolved upstream URL plus the headers needed to
// fetch it, and is bound to the client IP it was issued to.
package token

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound means the key is absent or its entry has expired. The two
// cases are indistinguishable on purpose.
var ErrNotFound = errors.New("token: not found")

// ErrInvalid means a token exists but may not be used by this caller.
var ErrInvalid = errors.New("token: invalid")

// Store is a TTL'd byte-value store. Implementations must treat expired
// entries as absent.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
