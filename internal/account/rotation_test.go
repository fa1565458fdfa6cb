package account

import (
	"testing"
	"time"
)

func TestNextAvailable_SkipsLimited(t *testing.T) {
	m := NewManager()
	m.MarkRateLimited("anthropic", 0, time.Minute)

	if idx := m.NextAvailable("anthropic", 3); idx != 1 {
		t.Errorf("NextAvailable = %d, want 1", idx)
	}
}

func TestNextAvailable_AllLimitedPicksEarliest(t *testing.T) {
	m := NewManager()
	m.MarkRateLimited("openai", 0, 3*time.Minute)
	m.MarkRateLimited("openai", 1, time.Minute)
	m.MarkRateLimited("openai", 2, 2*time.Minute)

	if idx := m.NextAvailable("openai", 3); idx != 1 {
		t.Errorf("NextAvailable = %d, want 1 (earliest expiry)", idx)
	}
}

func TestNextAvailable_ExpiredWindowIsAvailable(t *testing.T) {
	m := NewManager()
	m.MarkRateLimited("gemini", 0, time.Minute)
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if idx := m.NextAvailable("gemini", 2); idx != 0 {
		t.Errorf("NextAvailable = %d, want 0", idx)
	}
}

func TestAllRateLimited(t *testing.T) {
	m := NewManager()
	if m.AllRateLimited("openai", 2) {
		t.Error("fresh provider should not report all limited")
	}

	m.MarkRateLimited("openai", 0, time.Minute)
	if m.AllRateLimited("openai", 2) {
		t.Error("one free index left, should not report all limited")
	}

	m.MarkRateLimited("openai", 1, time.Minute)
	if !m.AllRateLimited("openai", 2) {
		t.Error("both indexes limited, should report all limited")
	}
}

func TestMinWait(t *testing.T) {
	m := NewManager()
	if w := m.MinWait("openai", 2); w != 0 {
		t.Errorf("MinWait on fresh provider = %v, want 0", w)
	}

	m.MarkRateLimited("openai", 0, 3*time.Minute)
	if w := m.MinWait("openai", 2); w != 0 {
		t.Errorf("MinWait with free index = %v, want 0", w)
	}

	m.MarkRateLimited("openai", 1, time.Minute)
	w := m.MinWait("openai", 2)
	if w <= 0 || w > time.Minute {
		t.Errorf("MinWait = %v, want (0, 1m]", w)
	}
}

func TestReset(t *testing.T) {
	m := NewManager()
	m.MarkRateLimited("openai", 0, time.Minute)
	m.Reset("openai")
	if idx := m.NextAvailable("openai", 1); idx != 0 {
		t.Errorf("NextAvailable after reset = %d, want 0", idx)
	}
}
