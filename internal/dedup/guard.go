package dedup

import (
	"sync"
	"time"
)

// Guard rejects repeated submissions of the same fingerprint within a window.
// It is advisory: a missed duplicate is caught later by the credit check.
type Guard interface {
	// IsDuplicate records fingerprint with expiry now+ttl and returns false
	// when it is unknown or expired; otherwise it returns true and leaves the
	// recorded expiry untouched.
	IsDuplicate(fingerprint string, ttl time.Duration) bool
}

// DefaultCleanupThreshold is the entry count above which expired entries are swept.
const DefaultCleanupThreshold = 1000

// MemoryGuard is a process-local Guard. Multiple API instances need a shared
// backend instead.
type MemoryGuard struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	threshold int
	now       func() time.Time
}

// NewMemoryGuard returns a guard that sweeps expired entries once more than
// threshold fingerprints are held. A non-positive threshold uses the default.
func NewMemoryGuard(threshold int) *MemoryGuard {
	if threshold <= 0 {
		threshold = DefaultCleanupThreshold
	}
	return &MemoryGuard{
		entries:   make(map[string]time.Time),
		threshold: threshold,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (g *MemoryGuard) WithClock(now func() time.Time) *MemoryGuard {
	g.now = now
	return g
}

func (g *MemoryGuard) IsDuplicate(fingerprint string, ttl time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.entries[fingerprint]; ok && now.Before(expiry) {
		return true
	}
	g.entries[fingerprint] = now.Add(ttl)
	if len(g.entries) > g.threshold {
		g.sweep(now)
	}
	return false
}

// Len reports how many fingerprints are currently held.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *MemoryGuard) sweep(now time.Time) {
	for key, expiry := range g.entries {
		if !now.Before(expiry) {
			delete(g.entries, key)
		}
	}
}

var _ Guard = (*MemoryGuard)(nil)
