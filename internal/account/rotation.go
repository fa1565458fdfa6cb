// Package account rotates provider-local credentials. Each provider owns an
// ordered credential list; the manager tracks which indexes are currently
// rate-limited and picks the best index for the next attempt.
package account

import (
	"sync"
	"time"
)

// Manager tracks per-index rate-limit windows for every provider. It is
// shared across requests and safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	providers map[string]map[int]time.Time
	now       func() time.Time
}

// NewManager returns an empty rotation manager.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]map[int]time.Time),
		now:       time.Now,
	}
}

// NextAvailable returns the first index in [0,n) whose rate limit is absent
// or expired. When every index is limited it returns the one whose window
// expires soonest.
func (m *Manager) NextAvailable(provider string, n int) int {
	if n <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	states := m.providers[provider]
	now := m.now()

	best := 0
	bestUntil := time.Time{}
	for i := 0; i < n; i++ {
		until, ok := states[i]
		if !ok || !now.Before(until) {
			return i
		}
		if bestUntil.IsZero() || until.Before(bestUntil) {
			best = i
			bestUntil = until
		}
	}
	return best
}

// MarkRateLimited records that the credential at index is unusable for d.
func (m *Manager) MarkRateLimited(provider string, index int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	states, ok := m.providers[provider]
	if !ok {
		states = make(map[int]time.Time)
		m.providers[provider] = states
	}
	states[index] = m.now().Add(d)
}

// AllRateLimited reports whether every index in [0,n) has an active window.
func (m *Manager) AllRateLimited(provider string, n int) bool {
	if n <= 0 {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	states := m.providers[provider]
	now := m.now()
	for i := 0; i < n; i++ {
		until, ok := states[i]
		if !ok || !now.Before(until) {
			return false
		}
	}
	return true
}

// MinWait returns how long until the earliest credential frees up, or zero
// when at least one index is available now.
func (m *Manager) MinWait(provider string, n int) time.Duration {
	if n <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	states := m.providers[provider]
	now := m.now()

	var min time.Duration
	for i := 0; i < n; i++ {
		until, ok := states[i]
		if !ok || !now.Before(until) {
			return 0
		}
		wait := until.Sub(now)
		if min == 0 || wait < min {
			min = wait
		}
	}
	return min
}

// Reset clears all windows for provider.
func (m *Manager) Reset(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.providers, provider)
}
