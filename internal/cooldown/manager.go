// Package cooldown tracks rate-limit state per "provider:model" key with
// exponential backoff. The manager is shared by every in-flight request, so
// all operations are safe for concurrent use.
package cooldown

import (
	"math/rand"
	"sync"
	"time"
)

const (
	// BaseDelay is the cooldown applied on the first rate limit for a key.
	BaseDelay = 30 * time.Second

	// MaxDelay caps exponential growth.
	MaxDelay = 15 * time.Minute

	jitterFraction = 0.1
)

// state holds the cooldown record for a single key. Entries are created on
// the first rate limit and removed only by an explicit Reset.
type state struct {
	resetAt      time.Time
	backoffLevel int
}

// Entry is a read-only snapshot of a key's cooldown state.
type Entry struct {
	Key          string
	ResetAt      time.Time
	BackoffLevel int
}

// Manager implements cooldown bookkeeping for rate-limited upstream keys.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*state
	now     func() time.Time
	rand    func() float64
}

// NewManager returns an empty cooldown manager.
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*state),
		now:     time.Now,
		rand:    rand.Float64,
	}
}

// MarkRateLimited records a rate limit for key and returns the chosen cooldown
// duration. When retryAfter is positive it is used as-is plus 0-10% jitter and
// the backoff level is left untouched; otherwise the duration is
// min(Base*2^level, Max) with jitter and the level is incremented.
func (m *Manager) MarkRateLimited(key string, retryAfter time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.entries[key]
	if !ok {
		st = &state{}
		m.entries[key] = st
	}

	var d time.Duration
	if retryAfter > 0 {
		d = retryAfter
	} else {
		d = BaseDelay << uint(st.backoffLevel)
		if d > MaxDelay || d <= 0 {
			d = MaxDelay
		}
		st.backoffLevel++
	}
	d = time.Duration(float64(d) * (1 + m.rand()*jitterFraction))

	st.resetAt = m.now().Add(d)
	return d
}

// IsAvailable reports whether key has no active cooldown.
func (m *Manager) IsAvailable(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.entries[key]
	if !ok {
		return true
	}
	return !m.now().Before(st.resetAt)
}

// ResetTime returns the instant the key's cooldown expires. The zero time is
// returned for unknown keys.
func (m *Manager) ResetTime(key string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.entries[key]; ok {
		return st.resetAt
	}
	return time.Time{}
}

// Reset deletes the entry for key, clearing its backoff level.
func (m *Manager) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Snapshot returns all tracked entries, expired ones included. Expired
// entries linger until Reset or the next MarkRateLimited overwrites them.
func (m *Manager) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for key, st := range m.entries {
		out = append(out, Entry{Key: key, ResetAt: st.resetAt, BackoffLevel: st.backoffLevel})
	}
	return out
}
