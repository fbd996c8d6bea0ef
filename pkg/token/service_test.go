package token

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"streamgate/pkg/logging"
	"streamgate/pkg/types"
)

func testService(t *testing.T, ttl time.Duration) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	t.Cleanup(store.Close)
	log := logging.New("error", false, io.Discard)
	return NewService(store, ttl, log), store
}

func testRecord(ip string) types.TokenRecord {
	return types.TokenRecord{
		ResolvedURL: "https://origin.example/path/mono.m3u8",
		Provider:    "tv",
		ChannelRef:  "325",
		Headers:     map[string]string{"Referer": "https://player.example/"},
		ClientIP:    ip,
	}
}

func TestIssueResolveRoundTrip(t *testing.T) {
	svc, _ := testService(t, time.Minute)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, testRecord("203.0.113.7"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(tok) != tokenBytes*2 {
		t.Errorf("token length = %d, want %d hex chars", len(tok), tokenBytes*2)
	}

	record, err := svc.Resolve(ctx, tok, "203.0.113.7")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if record.ResolvedURL != "https://origin.example/path/mono.m3u8" {
		t.Errorf("ResolvedURL = %q", record.ResolvedURL)
	}
	if record.Headers["Referer"] != "https://player.example/" {
		t.Errorf("Headers = %v", record.Headers)
	}
	if record.CreatedAt == 0 {
		t.Error("CreatedAt should be stamped on issue")
	}
}

func TestResolveRejectsWrongIP(t *testing.T) {
	svc, _ := testService(t, time.Minute)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, testRecord("203.0.113.7"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Resolve(ctx, tok, "198.51.100.9"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Resolve from wrong IP: err = %v, want ErrInvalid", err)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	svc, _ := testService(t, time.Minute)

	if _, err := svc.Resolve(context.Background(), "deadbeef", "203.0.113.7"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Resolve of unknown token: err = %v, want ErrInvalid", err)
	}
}

func TestResolveExpiredToken(t *testing.T) {
	svc, _ := testService(t, 10*time.Millisecond)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, testRecord("203.0.113.7"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := svc.Resolve(ctx, tok, "203.0.113.7"); !errors.Is(err, ErrInvalid) {
		t.Errorf("Resolve of expired token: err = %v, want ErrInvalid", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	svc, _ := testService(t, time.Minute)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := svc.Issue(ctx, testRecord("203.0.113.7"))
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token after %d issues", i)
		}
		seen[tok] = true
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	if err := store.Put(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, err := store.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get before expiry = %q, %v", got, err)
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after expiry: err = %v, want ErrNotFound", err)
	}
}
