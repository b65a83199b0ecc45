// Package activity tracks the last observed request per sandbox subdomain.
// The map is process-local and authoritative for idle calculation; on
// restart it is reseeded from the container registry.
package activity

import (
	"sync"
	"time"
)

// Tracker is a concurrency-safe subdomain -> last-touched map. Operations
// are O(1) under a single mutex so the proxy hot path never holds a lock
// across I/O.
type Tracker struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

// Touch records activity for a subdomain. Last writer wins; a stale write
// can only delay reaping, never advance it, so no ordering is enforced.
func (t *Tracker) Touch(subdomain string, at time.Time) {
	t.mu.Lock()
	t.last[subdomain] = at
	t.mu.Unlock()
}

// Last returns the last-touched time for a subdomain. ok is false when the
// subdomain has no entry; callers fall back to the registry row.
func (t *Tracker) Last(subdomain string) (at time.Time, ok bool) {
	t.mu.Lock()
	at, ok = t.last[subdomain]
	t.mu.Unlock()
	return at, ok
}

// Evict drops the entry for a subdomain once its container is terminal.
func (t *Tracker) Evict(subdomain string) {
	t.mu.Lock()
	delete(t.last, subdomain)
	t.mu.Unlock()
}

// Seed sets the entry only if none exists. Boot-time recovery uses it so a
// request that already arrived is not overwritten by a stale stored value.
func (t *Tracker) Seed(subdomain string, at time.Time) {
	t.mu.Lock()
	if _, ok := t.last[subdomain]; !ok {
		t.last[subdomain] = at
	}
	t.mu.Unlock()
}

// Len returns how many subdomains are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
