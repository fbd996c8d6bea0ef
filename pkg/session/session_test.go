package session

import (
	"testing"
	"time"
)

func TestCurrentIsStableWithinWindow(t *testing.T) {
	m := NewManager(10 * time.Minute)

	first := m.Current()
	if first == "" {
		t.Fatal("Current returned empty identifier")
	}
	for i := 0; i < 10; i++ {
		if got := m.Current(); got != first {
			t.Fatalf("identifier changed within rotation window: %q != %q", got, first)
		}
	}
}

func TestCurrentRotatesAfterWindow(t *testing.T) {
	m := NewManager(10 * time.Minute)

	clock := time.Now()
	m.now = func() time.Time { return clock }

	first := m.Current()

	clock = clock.Add(9 * time.Minute)
	if got := m.Current(); got != first {
		t.Errorf("rotated too early at 9m: %q != %q", got, first)
	}

	clock = clock.Add(2 * time.Minute)
	second := m.Current()
	if second == first {
		t.Error("identifier not rotated after window elapsed")
	}

	if got := m.Current(); got != second {
		t.Errorf("identifier unstable after rotation: %q != %q", got, second)
	}
}

func TestCurrentIsConcurrencySafe(t *testing.T) {
	m := NewManager(10 * time.Minute)

	done := make(chan string, 50)
	for i := 0; i < 50; i++ {
		go func() { done <- m.Current() }()
	}

	first := <-done
	for i := 1; i < 50; i++ {
		if got := <-done; got != first {
			t.Fatalf("concurrent callers saw different identifiers: %q != %q", got, first)
		}
	}
}
