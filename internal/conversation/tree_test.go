package conversation

import (
	"testing"

	"github.com/tidwall/gjson"
)

const geminiBody = `{"contents":[
	{"role":"user","parts":[{"text":"hi"}]},
	{"role":"model","parts":[
		{"thought":true,"text":"planning","thoughtSignature":"sig-abc"},
		{"functionCall":{"id":"t1","name":"search","args":{"q":"x"}}}
	]},
	{"role":"user","parts":[{"functionResponse":{"id":"t1","name":"search","response":{"ok":true}}}]}
]}`

const anthropicBody = `{"messages":[
	{"role":"user","content":"hi"},
	{"role":"assistant","content":[
		{"type":"thinking","thinking":"planning","signature":"sig-abc"},
		{"type":"tool_use","id":"t1","name":"search","input":{"q":"x"}}
	]},
	{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}
]}`

func TestParseGemini(t *testing.T) {
	msgs, path := ParseGemini([]byte(geminiBody))
	if path != "contents" {
		t.Fatalf("path = %q", path)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("role = %q, want assistant", msgs[1].Role)
	}
	if msgs[1].Parts[0].Kind != KindThinking || msgs[1].Parts[0].Signature != "sig-abc" {
		t.Errorf("thinking part = %+v", msgs[1].Parts[0])
	}
	if msgs[1].Parts[1].Kind != KindToolUse || msgs[1].Parts[1].ToolName != "search" {
		t.Errorf("tool part = %+v", msgs[1].Parts[1])
	}
	if !msgs[2].IsToolResultOnly() {
		t.Error("last message should be tool-result only")
	}
}

func TestParseGemini_Wrapped(t *testing.T) {
	body := `{"project":"p","request":` + geminiBody + `}`
	msgs, path := ParseGemini([]byte(body))
	if path != "request.contents" {
		t.Fatalf("path = %q", path)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d", len(msgs))
	}
}

func TestParseAnthropic(t *testing.T) {
	msgs, path := ParseAnthropic([]byte(anthropicBody))
	if path != "messages" {
		t.Fatalf("path = %q", path)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Parts[0].Kind != KindText || msgs[0].Parts[0].Text != "hi" {
		t.Errorf("string content part = %+v", msgs[0].Parts[0])
	}
	if !msgs[1].HasThinking() || !msgs[1].HasToolUse() {
		t.Error("assistant message should carry thinking and tool use")
	}
}

func TestSignatureAliases(t *testing.T) {
	for _, alias := range []string{"signature", "thoughtSignature", "thought_signature"} {
		body := `{"contents":[{"role":"model","parts":[{"thought":true,"text":"x","` + alias + `":"s1"}]}]}`
		msgs, _ := ParseGemini([]byte(body))
		if msgs[0].Parts[0].Signature != "s1" {
			t.Errorf("alias %q not recognized", alias)
		}
	}
}

func TestEmitGemini_RoundTrip(t *testing.T) {
	msgs, path := ParseGemini([]byte(geminiBody))
	out := EmitGemini([]byte(geminiBody), path, msgs)

	if got := gjson.GetBytes(out, "contents.1.parts.0.thoughtSignature").String(); got != "sig-abc" {
		t.Errorf("signature = %q", got)
	}
	if got := gjson.GetBytes(out, "contents.1.role").String(); got != "model" {
		t.Errorf("role = %q, want model", got)
	}
	if got := gjson.GetBytes(out, "contents.1.parts.1.functionCall.args.q").String(); got != "x" {
		t.Errorf("args not preserved: %s", out)
	}
}

func TestEmitAnthropic_CanonicalNames(t *testing.T) {
	// A Gemini-parsed tree re-emitted as Anthropic uses Anthropic field names.
	msgs, _ := ParseGemini([]byte(geminiBody))
	out := EmitAnthropic([]byte(`{}`), "messages", msgs)

	if got := gjson.GetBytes(out, "messages.1.content.0.type").String(); got != "thinking" {
		t.Errorf("type = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.1.content.0.signature").String(); got != "sig-abc" {
		t.Errorf("signature = %q", got)
	}
	if got := gjson.GetBytes(out, "messages.2.content.0.type").String(); got != "tool_result" {
		t.Errorf("tool result type = %q", got)
	}
}

func TestParse_Detect(t *testing.T) {
	if _, dialect, _ := Parse([]byte(geminiBody)); dialect != "gemini" {
		t.Errorf("dialect = %q", dialect)
	}
	if _, dialect, _ := Parse([]byte(anthropicBody)); dialect != "anthropic" {
		t.Errorf("dialect = %q", dialect)
	}
	if _, dialect, _ := Parse([]byte(`{"foo":1}`)); dialect != "" {
		t.Errorf("dialect = %q, want empty", dialect)
	}
}
