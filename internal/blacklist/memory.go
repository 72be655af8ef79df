package blacklist

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]time.Time // zero time means no expiry
	now     func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithClock(time.Now)
}

// NewMemoryBackendWithClock creates an in-memory backend that reads the
// current time from now.
func NewMemoryBackendWithClock(now func() time.Time) *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]time.Time),
		now:     now,
	}
}

// Add implements Backend.
func (b *MemoryBackend) Add(_ context.Context, entry string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = b.now().Add(ttl)
	}
	b.entries[entry] = expires
	return nil
}

// Contains implements Backend.
func (b *MemoryBackend) Contains(_ context.Context, entry string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expires, ok := b.entries[entry]
	if !ok {
		return false, nil
	}
	if !expires.IsZero() && !b.now().Before(expires) {
		delete(b.entries, entry)
		return false, nil
	}
	return true, nil
}

// List implements Backend.
func (b *MemoryBackend) List(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	out := make([]string, 0, len(b.entries))
	for entry, expires := range b.entries {
		if !expires.IsZero() && !now.Before(expires) {
			delete(b.entries, entry)
			continue
		}
		out = append(out, entry)
	}
	sort.Strings(out)
	return out, nil
}

// Reset implements Backend.
func (b *MemoryBackend) Reset(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]time.Time)
	return nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error { return nil }
