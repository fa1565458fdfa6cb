package cooldown

import (
	"testing"
	"time"
)

func newTestManager(randVal float64) *Manager {
	m := NewManager()
	m.rand = func() float64 { return randVal }
	return m
}

func TestMarkRateLimited_BackoffTrio(t *testing.T) {
	m := newTestManager(0)

	d1 := m.MarkRateLimited("openai:gpt-4", 0)
	d2 := m.MarkRateLimited("openai:gpt-4", 0)
	d3 := m.MarkRateLimited("openai:gpt-4", 0)

	if d1 != 30*time.Second {
		t.Errorf("d1 = %v, want 30s", d1)
	}
	if d2 != 60*time.Second {
		t.Errorf("d2 = %v, want 60s", d2)
	}
	if d3 != 120*time.Second {
		t.Errorf("d3 = %v, want 120s", d3)
	}

	m.Reset("openai:gpt-4")
	d := m.MarkRateLimited("openai:gpt-4", 0)
	if d != 30*time.Second {
		t.Errorf("post-reset delay = %v, want 30s", d)
	}
}

func TestMarkRateLimited_JitterBounds(t *testing.T) {
	m := newTestManager(1) // maximum jitter
	d := m.MarkRateLimited("k", 0)
	if d != 33*time.Second {
		t.Errorf("max-jitter delay = %v, want 33s", d)
	}
	base := float64(BaseDelay)
	if d > time.Duration(base*1.1) {
		t.Errorf("delay %v exceeds base*1.1", d)
	}
}

func TestMarkRateLimited_MaxCap(t *testing.T) {
	m := newTestManager(0)
	var d time.Duration
	for i := 0; i < 12; i++ {
		d = m.MarkRateLimited("k", 0)
	}
	if d != MaxDelay {
		t.Errorf("capped delay = %v, want %v", d, MaxDelay)
	}
}

func TestMarkRateLimited_ExplicitRetryAfter(t *testing.T) {
	m := newTestManager(0)

	d := m.MarkRateLimited("k", 5*time.Second)
	if d != 5*time.Second {
		t.Errorf("explicit retry-after delay = %v, want 5s", d)
	}

	// Explicit durations must not advance the backoff level.
	d = m.MarkRateLimited("k", 0)
	if d != 30*time.Second {
		t.Errorf("delay after explicit retry-after = %v, want 30s", d)
	}
}

func TestIsAvailable(t *testing.T) {
	m := newTestManager(0)
	if !m.IsAvailable("unknown") {
		t.Error("unknown key should be available")
	}

	m.MarkRateLimited("k", 0)
	if m.IsAvailable("k") {
		t.Error("rate-limited key should be unavailable")
	}

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	if !m.IsAvailable("k") {
		t.Error("expired cooldown should be available")
	}
}

func TestReset(t *testing.T) {
	m := newTestManager(0)
	m.MarkRateLimited("k", 0)
	m.Reset("k")
	if !m.IsAvailable("k") {
		t.Error("reset key should be available")
	}
	if !m.ResetTime("k").IsZero() {
		t.Error("reset key should report zero reset time")
	}
}

func TestSnapshot(t *testing.T) {
	m := newTestManager(0)
	m.MarkRateLimited("a", 0)
	m.MarkRateLimited("b", 0)
	m.MarkRateLimited("b", 0)

	entries := m.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(entries))
	}
	byKey := make(map[string]Entry)
	for _, e := range entries {
		byKey[e.Key] = e
	}
	if byKey["a"].BackoffLevel != 1 || byKey["b"].BackoffLevel != 2 {
		t.Errorf("backoff levels = %d/%d, want 1/2", byKey["a"].BackoffLevel, byKey["b"].BackoffLevel)
	}
}
