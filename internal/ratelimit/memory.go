package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps windows in process memory. Lookups share a map-level
// lock; the read-modify-write of a window holds only that key's lock.
type MemoryLedger struct {
	mu      sync.RWMutex
	windows map[Key]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	mu      sync.Mutex
	count   int64
	start   time.Time
	window  time.Duration
	removed bool
}

// MemoryOption configures a MemoryLedger
type MemoryOption func(*MemoryLedger)

// WithClock overrides the ledger's time source
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLedger) { m.now = now }
}

// NewMemoryLedger creates an empty in-process ledger
func NewMemoryLedger(opts ...MemoryOption) *MemoryLedger {
	m := &MemoryLedger{
		windows: make(map[Key]*memoryWindow),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckAndIncrement implements Ledger
func (m *MemoryLedger) CheckAndIncrement(ctx context.Context, key Key, limit Limit) (Check, error) {
	if err := ctx.Err(); err != nil {
		return Check{}, unavailable("memory check", err)
	}

	for {
		w := m.window(key)

		w.mu.Lock()
		if w.removed {
			// swept between lookup and lock; take the fresh entry
			w.mu.Unlock()
			continue
		}

		now := m.now()
		if w.start.IsZero() || !now.Before(w.start.Add(limit.Window)) {
			w.count = 0
			w.start = now
		}
		w.count++
		w.window = limit.Window
		check := evaluate(w.count, w.start, limit)
		w.mu.Unlock()

		return check, nil
	}
}

func (m *MemoryLedger) window(key Key) *memoryWindow {
	m.mu.RLock()
	w, ok := m.windows[key]
	m.mu.RUnlock()
	if ok {
		return w
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok = m.windows[key]; ok {
		return w
	}
	w = &memoryWindow{}
	m.windows[key] = w
	return w
}

// Sweep drops windows that have expired and returns how many were removed
func (m *MemoryLedger) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		w.mu.Lock()
		if !w.start.IsZero() && !now.Before(w.start.Add(w.window)) {
			w.removed = true
			delete(m.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked windows
func (m *MemoryLedger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.windows)
}

// StartJanitor sweeps expired windows every interval until ctx is done
func (m *MemoryLedger) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}
