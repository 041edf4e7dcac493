package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps windows in process. Call Sweep periodically to drop
// keys that have gone quiet.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]time.Time)}
}

func (m *MemoryStore) Admit(_ context.Context, key string, now time.Time, window time.Duration, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := prune(m.windows[key], now, window)
	count := len(live)
	if count >= limit {
		m.store(key, live)
		return count, false, nil
	}
	m.windows[key] = append(live, now)
	return count, true, nil
}

func (m *MemoryStore) Count(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.windows[key] {
		if now.Sub(t) < window {
			n++
		}
	}
	return n, nil
}

// Sweep prunes every window and removes empty ones. It returns the number
// of keys still tracked.
func (m *MemoryStore) Sweep(now time.Time, window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ts := range m.windows {
		m.store(key, prune(ts, now, window))
	}
	return len(m.windows)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now, Window)
		}
	}
}

func (m *MemoryStore) store(key string, ts []time.Time) {
	if len(ts) == 0 {
		delete(m.windows, key)
		return
	}
	m.windows[key] = ts
}

// prune drops expired timestamps in place. Concurrent callers may record
// slightly out of order, so the whole window is filtered.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	live := ts[:0]
	for _, t := range ts {
		if now.Sub(t) < window {
			live = append(live, t)
		}
	}
	return live
}
