package authbridge

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	wazapi "github.com/tetratelabs/wazero/api"

	"streamgate/pkg/logging"
)

// Browser environment constants reported to the module. The module
// fingerprints its host; these values reproduce the environment it was
// built to observe, and must stay stable for the lifetime of a derived key.
const (
	hostUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	hostPlatform  = "Win32"
	hostLanguage  = "en-US"
	screenWidth   = 1920
	screenHeight  = 1080
)

// wasmModule hosts the provider's compiled module in a wazero runtime with
// an explicit import table standing in for the browser globals the module
// expects: a clock slaved to provider time, a storage cell holding a
// per-process session id, and a deterministic canvas fingerprint.
type wasmModule struct {
	runtime     wazero.Runtime
	mod         wazapi.Module
	alloc       wazapi.Function
	deriveKey   wazapi.Function
	decryptFn   wazapi.Function
	clockOffset time.Duration
	sessionID   string
	fingerprint string
}

// NewWasmLoader returns a Loader that instantiates the compiled module at
// path. Each load gets a fresh session id; the fingerprint is derived from
// the fixed environment constants so it is identical across loads.
func NewWasmLoader(path string, log *logging.Logger) Loader {
	log = log.WithComponent("authbridge.wasm")
	return func(ctx context.Context, offset time.Duration) (Module, error) {
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading module: %w", err)
		}
		log.Debug("loading auth module", "path", path, "bytes", len(code))
		return newWasmModule(ctx, code, offset)
	}
}

func newWasmModule(ctx context.Context, code []byte, offset time.Duration) (*wasmModule, error) {
	m := &wasmModule{
		clockOffset: offset,
		sessionID:   newSessionID(),
		fingerprint: canvasFingerprint(),
	}

	m.runtime = wazero.NewRuntime(ctx)

	_, err := m.runtime.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(m.hostNowMillis).Export("host_now_ms").
		NewFunctionBuilder().WithFunc(m.hostSessionID).Export("host_session_id").
		NewFunctionBuilder().WithFunc(m.hostFingerprint).Export("host_fingerprint").
		NewFunctionBuilder().WithFunc(m.hostUserAgentFn).Export("host_user_agent").
		NewFunctionBuilder().WithFunc(m.hostPlatformFn).Export("host_platform").
		NewFunctionBuilder().WithFunc(m.hostLanguageFn).Export("host_language").
		NewFunctionBuilder().WithFunc(hostScreenSize).Export("host_screen_size").
		NewFunctionBuilder().WithFunc(hostRandom).Export("host_random").
		Instantiate(ctx)
	if err != nil {
		_ = m.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiating host imports: %w", err)
	}

	mod, err := m.runtime.Instantiate(ctx, code)
	if err != nil {
		_ = m.runtime.Close(ctx)
		return nil, fmt.Errorf("instantiating module: %w", err)
	}
	m.mod = mod

	for name, fn := range map[string]*wazapi.Function{
		"alloc":      &m.alloc,
		"derive_key": &m.deriveKey,
		"decrypt":    &m.decryptFn,
	} {
		f := mod.ExportedFunction(name)
		if f == nil {
			_ = m.runtime.Close(ctx)
			return nil, fmt.Errorf("module does not export %q", name)
		}
		*fn = f
	}

	return m, nil
}

// DeriveKey calls the module's key derivation and returns the key string.
func (m *wasmModule) DeriveKey(ctx context.Context) (string, error) {
	out, err := m.allocBytes(ctx, 256)
	if err != nil {
		return "", err
	}

	results, err := m.deriveKey.Call(ctx, out, 256)
	if err != nil {
		return "", fmt.Errorf("derive_key: %w", err)
	}

	n := wazapi.DecodeI32(results[0])
	if n <= 0 {
		return "", errors.New("derive_key returned no key")
	}

	key, ok := m.mod.Memory().Read(uint32(out), uint32(n))
	if !ok {
		return "", errors.New("derive_key result out of bounds")
	}
	return string(key), nil
}

// Decrypt passes a response payload and the key into the module and reads
// back the transformed bytes. A negative return from the module means it
// rejected the payload.
func (m *wasmModule) Decrypt(ctx context.Context, payload []byte, key string) ([]byte, error) {
	in, err := m.writeBytes(ctx, payload)
	if err != nil {
		return nil, err
	}
	keyPtr, err := m.writeBytes(ctx, []byte(key))
	if err != nil {
		return nil, err
	}

	outCap := uint64(len(payload) + 4096)
	out, err := m.allocBytes(ctx, outCap)
	if err != nil {
		return nil, err
	}

	results, err := m.decryptFn.Call(ctx,
		in, uint64(len(payload)),
		keyPtr, uint64(len(key)),
		out, outCap)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	n := wazapi.DecodeI32(results[0])
	if n < 0 {
		return nil, errors.New("module rejected payload")
	}

	plain, ok := m.mod.Memory().Read(uint32(out), uint32(n))
	if !ok {
		return nil, errors.New("decrypt result out of bounds")
	}

	result := make([]byte, len(plain))
	copy(result, plain)
	return result, nil
}

// Close shuts down the runtime and everything instantiated in it.
func (m *wasmModule) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

func (m *wasmModule) allocBytes(ctx context.Context, size uint64) (uint64, error) {
	results, err := m.alloc.Call(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("alloc: %w", err)
	}
	return results[0], nil
}

func (m *wasmModule) writeBytes(ctx context.Context, data []byte) (uint64, error) {
	ptr, err := m.allocBytes(ctx, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if !m.mod.Memory().Write(uint32(ptr), data) {
		return 0, errors.New("module memory write out of bounds")
	}
	return ptr, nil
}

// Host imports. String-returning imports follow one convention: the module
// passes a destination pointer and capacity, the host writes the value and
// returns its length, or negative if the buffer is too small.

func (m *wasmModule) hostNowMillis(_ context.Context, _ wazapi.Module) int64 {
	return time.Now().Add(m.clockOffset).UnixMilli()
}

func (m *wasmModule) hostSessionID(ctx context.Context, mod wazapi.Module, ptr, cap uint32) int32 {
	return writeString(mod, m.sessionID, ptr, cap)
}

func (m *wasmModule) hostFingerprint(ctx context.Context, mod wazapi.Module, ptr, cap uint32) int32 {
	return writeString(mod, m.fingerprint, ptr, cap)
}

func (m *wasmModule) hostUserAgentFn(ctx context.Context, mod wazapi.Module, ptr, cap uint32) int32 {
	return writeString(mod, hostUserAgent, ptr, cap)
}

func (m *wasmModule) hostPlatformFn(ctx context.Context, mod wazapi.Module, ptr, cap uint32) int32 {
	return writeString(mod, hostPlatform, ptr, cap)
}

func (m *wasmModule) hostLanguageFn(ctx context.Context, mod wazapi.Module, ptr, cap uint32) int32 {
	return writeString(mod, hostLanguage, ptr, cap)
}

func hostScreenSize(_ context.Context, _ wazapi.Module) int64 {
	return int64(screenWidth)<<32 | int64(screenHeight)
}

func hostRandom(_ context.Context, mod wazapi.Module, ptr, n uint32) int32 {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return -1
	}
	if !mod.Memory().Write(ptr, buf) {
		return -1
	}
	return int32(n)
}

func writeString(mod wazapi.Module, s string, ptr, cap uint32) int32 {
	if uint32(len(s)) > cap {
		return -1
	}
	if !mod.Memory().Write(ptr, []byte(s)) {
		return -1
	}
	return int32(len(s))
}

func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(buf)
}

// canvasFingerprint reproduces the deterministic canvas hash the module
// reads: a digest over the fixed environment fields.
func canvasFingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%dx%d",
		hostUserAgent, hostPlatform, hostLanguage, screenWidth, screenHeight)))
	return hex.EncodeToString(sum[:16])
}
