package token

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store. Suitable for single-instance
// deployments and tests; expired entries are dropped lazily on read and by
// a background sweep.
type MemoryStore struct {
	entries *xsync.Map[string, memoryEntry]
	done    chan struct{}
}

// NewMemoryStore creates a store and starts its sweep goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: xsync.NewMap[string, memoryEntry](),
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.entries.Store(key, memoryEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	entry, ok := s.entries.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		s.entries.Delete(key)
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() {
	close(s.done)
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.entries.Range(func(key string, entry memoryEntry) bool {
				if now.After(entry.expiresAt) {
					s.entries.Delete(key)
				}
				return true
			})
		}
	}
}
