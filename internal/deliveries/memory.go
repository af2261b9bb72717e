package deliveries

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	done    bool
	expires time.Time
}

// MemoryTracker keeps delivery state in process memory
type MemoryTracker struct {
	mu       sync.Mutex
	entries  map[string]entry
	claimTTL time.Duration
	doneTTL  time.Duration
	now      func() time.Time

	// expired entries are swept at most once per sweepEvery
	sweepEvery time.Duration
	lastSweep  time.Time
}

func NewMemoryTracker(claimTTL, doneTTL time.Duration) *MemoryTracker {
	claimTTL, doneTTL = ttls(claimTTL, doneTTL)
	return &MemoryTracker{
		entries:  make(map[string]entry),
		claimTTL:   claimTTL,
		doneTTL:    doneTTL,
		now:        time.Now,
		sweepEvery: claimTTL,
	}
}

func (t *MemoryTracker) Claim(_ context.Context, source, id string) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	k := key(source, id)
	if e, ok := t.entries[k]; ok && now.Before(e.expires) {
		if e.done {
			return Done, nil
		}
		return InFlight, nil
	}
	t.entries[k] = entry{expires: now.Add(t.claimTTL)}
	if now.Sub(t.lastSweep) >= t.sweepEvery {
		t.sweep(now)
		t.lastSweep = now
	}
	return Claimed, nil
}

func (t *MemoryTracker) Complete(_ context.Context, source, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key(source, id)] = entry{done: true, expires: t.now().Add(t.doneTTL)}
	return nil
}

func (t *MemoryTracker) Release(_ context.Context, source, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key(source, id))
	return nil
}

func (t *MemoryTracker) Close() error { return nil }

// sweep drops expired entries; caller holds mu
func (t *MemoryTracker) sweep(now time.Time) {
	for k, e := range t.entries {
		if !now.Before(e.expires) {
			delete(t.entries, k)
		}
	}
}
