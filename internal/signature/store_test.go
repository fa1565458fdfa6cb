package signature

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := OpenBolt(filepath.Join(t.TempDir(), "sig.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewStore(st.DB())
}

func TestStore_Admissibility(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(Record{Signature: "S1", ProjectID: "A", Provider: "antigravity"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if !s.IsValidForProject("S1", "A") {
		t.Error("S1 should be valid for project A")
	}
	if s.IsValidForProject("S1", "B") {
		t.Error("S1 should not be valid for project B")
	}
	if s.IsValidForProject("unknown", "A") {
		t.Error("unknown signature should not be valid")
	}

	rec, err := s.Get("S1")
	if err != nil || rec == nil {
		t.Fatalf("get: %v %v", rec, err)
	}
	if rec.CreatedAt == 0 {
		t.Error("CreatedAt should be stamped")
	}
}

func TestValidateAndStrip_ProjectMismatch(t *testing.T) {
	s := newTestStore(t)
	_ = s.Save(Record{Signature: "S1", ProjectID: "A"})

	body := `{"contents":[{"role":"model","parts":[{"thought":true,"text":"T","thoughtSignature":"S1"}]}]}`
	out, stripped := ValidateAndStrip([]byte(body), "B", s)

	if stripped != 1 {
		t.Errorf("stripped = %d, want 1", stripped)
	}
	part := gjson.GetBytes(out, "contents.0.parts.0")
	if part.Get("thoughtSignature").Exists() {
		t.Error("signature should be removed")
	}
	if !part.Get("thought").Bool() || part.Get("text").String() != "T" {
		t.Errorf("text and thought marker should survive: %s", part.Raw)
	}
}

func TestValidateAndStrip_MatchingProjectKept(t *testing.T) {
	s := newTestStore(t)
	_ = s.Save(Record{Signature: "S1", ProjectID: "A"})

	body := `{"request":{"contents":[{"role":"model","parts":[{"thought":true,"text":"T","thoughtSignature":"S1"}]}]}}`
	out, stripped := ValidateAndStrip([]byte(body), "A", s)

	if stripped != 0 {
		t.Errorf("stripped = %d, want 0", stripped)
	}
	if got := gjson.GetBytes(out, "request.contents.0.parts.0.thoughtSignature").String(); got != "S1" {
		t.Errorf("signature = %q, want kept", got)
	}
}

func TestValidateAndStrip_EmptyPartDropped(t *testing.T) {
	s := newTestStore(t)

	body := `{"messages":[{"role":"assistant","content":[{"type":"thinking","thinking":"","signature":"SX"},{"type":"text","text":"hello"}]}]}`
	out, stripped := ValidateAndStrip([]byte(body), "A", s)

	if stripped != 1 {
		t.Errorf("stripped = %d, want 1", stripped)
	}
	content := gjson.GetBytes(out, "messages.0.content")
	if n := len(content.Array()); n != 1 {
		t.Fatalf("content blocks = %d, want 1 (empty thinking dropped): %s", n, out)
	}
	if content.Get("0.type").String() != "text" {
		t.Errorf("surviving block = %s", content.Get("0").Raw)
	}
}

func TestStripAllSignatures_Idempotent(t *testing.T) {
	body := `{"messages":[{"role":"assistant","content":[{"type":"thinking","thinking":"deep","signature":"SX"}]}]}`
	once := StripAllSignatures([]byte(body))
	twice := StripAllSignatures(once)
	if string(once) != string(twice) {
		t.Errorf("strip not idempotent:\n%s\n%s", once, twice)
	}
	if strings.Contains(string(once), "SX") {
		t.Error("signature should be gone")
	}
}

func TestGlobalSlot(t *testing.T) {
	g := NewGlobalSlot()
	if _, _, ok := g.Get("claude"); ok {
		t.Error("empty slot should miss")
	}

	g.Set("text", "sig", "claude")
	text, sig, ok := g.Get("claude")
	if !ok || text != "text" || sig != "sig" {
		t.Errorf("Get = %q/%q/%v", text, sig, ok)
	}

	// Family mismatch misses.
	if _, _, ok = g.Get("gemini"); ok {
		t.Error("family mismatch should miss")
	}

	// Expiry after 10 minutes.
	g.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	if _, _, ok = g.Get("claude"); ok {
		t.Error("expired slot should miss")
	}

	g.now = time.Now
	g.Set("t", "s", "claude")
	g.Reset()
	if _, _, ok = g.Get("claude"); ok {
		t.Error("reset slot should miss")
	}
}
