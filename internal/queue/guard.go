package queue

import (
	"sync"
	"time"
)

type guardKey struct {
	owner int64
	job   string
}

// DuplicateGuard rejects resubmission of the same (owner, job) pair
// within a cooldown window. Entries older than maxAge are never consulted
// and are purged opportunistically before each lookup.
type DuplicateGuard struct {
	mu       sync.Mutex
	cooldown time.Duration
	maxAge   time.Duration
	seen     map[guardKey]time.Time
	now      func() time.Time
}

func NewDuplicateGuard(cooldown, maxAge time.Duration) *DuplicateGuard {
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	if maxAge < cooldown {
		maxAge = 10 * time.Minute
	}
	return &DuplicateGuard{
		cooldown: cooldown,
		maxAge:   maxAge,
		seen:     make(map[guardKey]time.Time),
		now:      time.Now,
	}
}

// SetClock replaces the time source; tests use it to advance a virtual
// clock instead of sleeping.
func (g *DuplicateGuard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// IsDuplicate reports whether the pair was processed within the cooldown.
func (g *DuplicateGuard) IsDuplicate(ownerID int64, jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.evictLocked(now)

	ts, ok := g.seen[guardKey{owner: ownerID, job: jobID}]
	return ok && now.Sub(ts) < g.cooldown
}

// MarkProcessed records that the pair reached a delivered outcome.
func (g *DuplicateGuard) MarkProcessed(ownerID int64, jobID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[guardKey{owner: ownerID, job: jobID}] = g.now()
}

func (g *DuplicateGuard) evictLocked(now time.Time) {
	for k, ts := range g.seen {
		if now.Sub(ts) > g.maxAge {
			delete(g.seen, k)
		}
	}
}
