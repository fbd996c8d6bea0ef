package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"streamgate/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New("error", false, io.Discard)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	var lookups atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		if r.URL.Query().Get("channel_id") != "325" {
			t.Errorf("channel_id = %q, want 325", r.URL.Query().Get("channel_id"))
		}
		io.WriteString(w, "wind")
	}))
	defer upstream.Close()

	r, err := New(http.DefaultClient, []string{upstream.URL}, time.Minute, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	first, err := r.Resolve(ctx, "325")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Key != "wind" {
		t.Errorf("Key = %q, want wind", first.Key)
	}
	if first.SourceDomain != upstream.URL {
		t.Errorf("SourceDomain = %q, want %q", first.SourceDomain, upstream.URL)
	}

	for i := 0; i < 5; i++ {
		cached, err := r.Resolve(ctx, "325")
		if err != nil {
			t.Fatalf("cached Resolve: %v", err)
		}
		if cached.Key != "wind" {
			t.Errorf("cached Key = %q", cached.Key)
		}
	}

	if got := lookups.Load(); got != 1 {
		t.Errorf("upstream lookups = %d, want 1 (cache should serve repeats)", got)
	}
}

func TestResolveFreshLookupAfterExpiry(t *testing.T) {
	var lookups atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		io.WriteString(w, "wind")
	}))
	defer upstream.Close()

	r, err := New(http.DefaultClient, []string{upstream.URL}, 50*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := r.Resolve(ctx, "325"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := r.Resolve(ctx, "325"); err != nil {
		t.Fatalf("Resolve after expiry: %v", err)
	}
	if got := lookups.Load(); got != 2 {
		t.Errorf("upstream lookups = %d, want exactly 2 (one fresh lookup after TTL)", got)
	}
}

func TestResolveFallsThroughMirrors(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	erroring := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"channel not found"}`)
	}))
	defer erroring.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"server":"zeko"}`)
	}))
	defer healthy.Close()

	r, err := New(http.DefaultClient, []string{dead.URL, erroring.URL, healthy.URL}, time.Minute, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resolved, err := r.Resolve(context.Background(), "99")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Key != "zeko" {
		t.Errorf("Key = %q, want zeko (from JSON mirror)", resolved.Key)
	}
	if resolved.SourceDomain != healthy.URL {
		t.Errorf("SourceDomain = %q, want the healthy mirror", resolved.SourceDomain)
	}
}

func TestResolveExhaustion(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer dead.Close()

	r, err := New(http.DefaultClient, []string{dead.URL, dead.URL}, time.Minute, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := r.Resolve(context.Background(), "325"); !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
}

func TestPlaylistURL(t *testing.T) {
	tests := []struct {
		name      string
		serverKey string
		channel   string
		want      string
	}{
		{"default pool on empty key", "", "premium325", "https://top1.newkso.ru/top1/cdn/premium325/mono.m3u8"},
		{"default pool on explicit key", "top1", "premium325", "https://top1.newkso.ru/top1/cdn/premium325/mono.m3u8"},
		{"assigned pool", "wind", "premium325", "https://windnew.newkso.ru/wind/premium325/mono.m3u8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlaylistURL(tt.serverKey, tt.channel); got != tt.want {
				t.Errorf("PlaylistURL(%q, %q) = %q, want %q", tt.serverKey, tt.channel, got, tt.want)
			}
		})
	}
}

func TestInvalidateForcesFreshLookup(t *testing.T) {
	var lookups atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		io.WriteString(w, "wind")
	}))
	defer upstream.Close()

	r, err := New(http.DefaultClient, []string{upstream.URL}, time.Minute, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if _, err := r.Resolve(ctx, "325"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	r.Invalidate("325")
	if _, err := r.Resolve(ctx, "325"); err != nil {
		t.Fatalf("Resolve after invalidate: %v", err)
	}

	if got := lookups.Load(); got != 2 {
		t.Errorf("upstream lookups = %d, want 2", got)
	}
}
