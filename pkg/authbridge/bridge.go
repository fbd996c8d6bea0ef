// Package authbridge runs a provider's compiled authentication module
// outside the browser it was built for. The module derives an API key and
// decrypts response payloads; this package hosts it, keeps the provider
// clock offset it depends on, and signs outbound requests with the derived
// key.
package authbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"streamgate/pkg/logging"
	"streamgate/pkg/metrics"
)

// State of the bridge lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Module is the narrow capability surface of the loaded foreign module.
type Module interface {
	DeriveKey(ctx context.Context) (string, error)
	Decrypt(ctx context.Context, payload []byte, key string) ([]byte, error)
	Close(ctx context.Context) error
}

// Loader constructs a fresh Module instance. offset is the measured
// provider clock offset the module's host environment must report.
type Loader func(ctx context.Context, offset time.Duration) (Module, error)

// TimeProbe measures the provider clock offset relative to local time.
type TimeProbe func(ctx context.Context) (time.Duration, error)

// ErrNotReady means initialization failed and the caller should surface an
// upstream error; the next call retries initialization.
var ErrNotReady = errors.New("authbridge: not ready")

// After this many consecutive decrypt failures the module or clock sync is
// assumed stale and the bridge tears down for reinitialization.
const maxConsecutiveFailures = 3

// Bridge owns one loaded module instance, its derived key and the clock
// offset, shared by every request to the provider.
type Bridge struct {
	mu          sync.Mutex
	state       State
	module      Module
	apiKey      string
	clockOffset time.Duration
	failures    int

	load  Loader
	probe TimeProbe
	log   *logging.Logger
}

// New creates an uninitialized bridge. The first Sign or Decrypt call pays
// the initialization cost.
func New(load Loader, probe TimeProbe, log *logging.Logger) *Bridge {
	return &Bridge{
		load:  load,
		probe: probe,
		log:   log.WithComponent("authbridge"),
	}
}

// State reports the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ensureReady runs the Uninitialized to Ready transition under the lock:
// clock sync, module load, key derivation.
func (b *Bridge) ensureReady(ctx context.Context) error {
	if b.state == StateReady {
		return nil
	}

	b.state = StateInitializing
	b.log.Info("initializing auth bridge")

	offset, err := b.probe(ctx)
	if err != nil {
		b.state = StateUninitialized
		return fmt.Errorf("%w: clock sync: %v", ErrNotReady, err)
	}

	module, err := b.load(ctx, offset)
	if err != nil {
		b.state = StateUninitialized
		return fmt.Errorf("%w: loading module: %v", ErrNotReady, err)
	}

	key, err := module.DeriveKey(ctx)
	if err != nil {
		_ = module.Close(ctx)
		b.state = StateUninitialized
		return fmt.Errorf("%w: deriving key: %v", ErrNotReady, err)
	}

	b.module = module
	b.apiKey = key
	b.clockOffset = offset
	b.failures = 0
	b.state = StateReady
	b.log.Info("auth bridge ready", "clock_offset", offset)
	return nil
}

// Sign produces the signed-request headers for a provider call path,
// initializing the bridge first if needed.
func (b *Bridge) Sign(ctx context.Context, path string) (Signature, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureReady(ctx); err != nil {
		return Signature{}, err
	}
	return sign(b.apiKey, path, time.Now().Add(b.clockOffset))
}

// Decrypt transforms a provider response body with the derived key.
// Repeated failures reset the bridge so the next request reinitializes
// with a fresh module and clock sync.
func (b *Bridge) Decrypt(ctx context.Context, payload []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureReady(ctx); err != nil {
		return nil, err
	}

	plain, err := b.module.Decrypt(ctx, payload, b.apiKey)
	if err != nil || len(plain) == 0 {
		b.failures++
		b.log.Warn("decrypt failed",
			"consecutive_failures", b.failures,
			"error", err)
		if b.failures >= maxConsecutiveFailures {
			b.reset(ctx)
		}
		if err == nil {
			err = errors.New("authbridge: empty decrypted payload")
		}
		return nil, err
	}

	b.failures = 0
	return plain, nil
}

// reset tears the bridge down to Uninitialized. Caller holds the lock.
func (b *Bridge) reset(ctx context.Context) {
	if b.module != nil {
		_ = b.module.Close(ctx)
		b.module = nil
	}
	b.apiKey = ""
	b.failures = 0
	b.state = StateUninitialized
	metrics.BridgeResets.Inc()
	b.log.Warn("auth bridge reset, next request reinitializes")
}

// Close releases the loaded module.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.module != nil {
		err := b.module.Close(ctx)
		b.module = nil
		b.state = StateUninitialized
		return err
	}
	return nil
}
