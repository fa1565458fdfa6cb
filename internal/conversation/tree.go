// Package conversation models a dialect-abstracted message tree. The three
// wire dialects carry the same concepts under different field names; parsing
// canonicalizes them into tagged parts so strip/inject logic is written once,
// and emitters re-encode with each dialect's canonical names.
package conversation

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Kind tags a part variant.
type Kind int

const (
	KindText Kind = iota
	KindThinking
	KindToolUse
	KindToolResult
	KindOther
)

// Canonical roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Part is one content element of a message. Raw preserves the original JSON
// for KindOther parts and for lossless passthrough of fields the tree does
// not model.
type Part struct {
	Kind      Kind
	Text      string
	Signature string
	ToolID    string
	ToolName  string
	Args      string // raw JSON
	Content   string // raw JSON tool-result payload
	Raw       string // original raw JSON of the part
}

// Message is one turn with a canonical role and its parts.
type Message struct {
	Role  string
	Parts []Part
}

// IsToolResultOnly reports whether every part of the message is a tool result.
func (m Message) IsToolResultOnly() bool {
	if len(m.Parts) == 0 {
		return false
	}
	for _, p := range m.Parts {
		if p.Kind != KindToolResult {
			return false
		}
	}
	return true
}

// HasToolResult reports whether any part is a tool result.
func (m Message) HasToolResult() bool {
	for _, p := range m.Parts {
		if p.Kind == KindToolResult {
			return true
		}
	}
	return false
}

// HasToolUse reports whether any part is a tool call.
func (m Message) HasToolUse() bool {
	for _, p := range m.Parts {
		if p.Kind == KindToolUse {
			return true
		}
	}
	return false
}

// HasThinking reports whether any part is a thinking block.
func (m Message) HasThinking() bool {
	for _, p := range m.Parts {
		if p.Kind == KindThinking {
			return true
		}
	}
	return false
}

// signatureOf reads a signature from any of the accepted field aliases.
func signatureOf(node gjson.Result) string {
	for _, field := range []string{"signature", "thoughtSignature", "thought_signature"} {
		if v := node.Get(field); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// ParseGemini decodes a Gemini contents array (either at the top level or
// inside an antigravity request wrapper) into messages. The returned path is
// where the array lives, for writing the tree back.
func ParseGemini(body []byte) (msgs []Message, path string) {
	path = "contents"
	contents := gjson.GetBytes(body, "contents")
	if !contents.Exists() {
		contents = gjson.GetBytes(body, "request.contents")
		if !contents.Exists() {
			return nil, ""
		}
		path = "request.contents"
	}

	contents.ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		if role == "model" {
			role = RoleAssistant
		}
		m := Message{Role: role}
		msg.Get("parts").ForEach(func(_, part gjson.Result) bool {
			m.Parts = append(m.Parts, parseGeminiPart(part))
			return true
		})
		msgs = append(msgs, m)
		return true
	})
	return msgs, path
}

func parseGeminiPart(part gjson.Result) Part {
	switch {
	case part.Get("thought").Bool():
		return Part{
			Kind:      KindThinking,
			Text:      part.Get("text").String(),
			Signature: signatureOf(part),
			Raw:       part.Raw,
		}
	case part.Get("functionCall").Exists():
		fc := part.Get("functionCall")
		return Part{
			Kind:     KindToolUse,
			ToolID:   fc.Get("id").String(),
			ToolName: fc.Get("name").String(),
			Args:     rawOr(fc.Get("args"), "{}"),
			Raw:      part.Raw,
		}
	case part.Get("functionResponse").Exists():
		fr := part.Get("functionResponse")
		return Part{
			Kind:     KindToolResult,
			ToolID:   fr.Get("id").String(),
			ToolName: fr.Get("name").String(),
			Content:  rawOr(fr.Get("response"), "{}"),
			Raw:      part.Raw,
		}
	case part.Get("text").Exists():
		return Part{Kind: KindText, Text: part.Get("text").String(), Raw: part.Raw}
	default:
		return Part{Kind: KindOther, Raw: part.Raw}
	}
}

// ParseAnthropic decodes an Anthropic messages array into the tree. String
// content becomes a single text part.
func ParseAnthropic(body []byte) (msgs []Message, path string) {
	path = "messages"
	messages := gjson.GetBytes(body, "messages")
	if !messages.Exists() {
		return nil, ""
	}

	messages.ForEach(func(_, msg gjson.Result) bool {
		m := Message{Role: msg.Get("role").String()}
		content := msg.Get("content")
		if content.IsArray() {
			content.ForEach(func(_, block gjson.Result) bool {
				m.Parts = append(m.Parts, parseAnthropicBlock(block))
				return true
			})
		} else if content.Exists() {
			m.Parts = append(m.Parts, Part{Kind: KindText, Text: content.String()})
		}
		msgs = append(msgs, m)
		return true
	})
	return msgs, path
}

func parseAnthropicBlock(block gjson.Result) Part {
	switch block.Get("type").String() {
	case "thinking", "redacted_thinking":
		return Part{
			Kind:      KindThinking,
			Text:      block.Get("thinking").String(),
			Signature: signatureOf(block),
			Raw:       block.Raw,
		}
	case "tool_use":
		return Part{
			Kind:     KindToolUse,
			ToolID:   block.Get("id").String(),
			ToolName: block.Get("name").String(),
			Args:     rawOr(block.Get("input"), "{}"),
			Raw:      block.Raw,
		}
	case "tool_result":
		return Part{
			Kind:    KindToolResult,
			ToolID:  block.Get("tool_use_id").String(),
			Content: rawOr(block.Get("content"), `""`),
			Raw:     block.Raw,
		}
	case "text":
		return Part{Kind: KindText, Text: block.Get("text").String(), Raw: block.Raw}
	default:
		return Part{Kind: KindOther, Raw: block.Raw}
	}
}

// EmitGemini writes the tree back over the contents array at path.
func EmitGemini(body []byte, path string, msgs []Message) []byte {
	arr := []byte(`[]`)
	for _, m := range msgs {
		role := m.Role
		if role == RoleAssistant {
			role = "model"
		}
		msg := []byte(`{}`)
		msg, _ = sjson.SetBytes(msg, "role", role)
		parts := []byte(`[]`)
		for _, p := range m.Parts {
			parts, _ = sjson.SetRawBytes(parts, "-1", emitGeminiPart(p))
		}
		msg, _ = sjson.SetRawBytes(msg, "parts", parts)
		arr, _ = sjson.SetRawBytes(arr, "-1", msg)
	}
	out, _ := sjson.SetRawBytes(body, path, arr)
	return out
}

func emitGeminiPart(p Part) []byte {
	switch p.Kind {
	case KindThinking:
		out := []byte(`{"thought":true}`)
		out, _ = sjson.SetBytes(out, "text", p.Text)
		if p.Signature != "" {
			out, _ = sjson.SetBytes(out, "thoughtSignature", p.Signature)
		}
		return out
	case KindToolUse:
		out := []byte(`{"functionCall":{}}`)
		if p.ToolID != "" {
			out, _ = sjson.SetBytes(out, "functionCall.id", p.ToolID)
		}
		out, _ = sjson.SetBytes(out, "functionCall.name", p.ToolName)
		out, _ = sjson.SetRawBytes(out, "functionCall.args", []byte(rawDefault(p.Args, "{}")))
		return out
	case KindToolResult:
		out := []byte(`{"functionResponse":{}}`)
		if p.ToolID != "" {
			out, _ = sjson.SetBytes(out, "functionResponse.id", p.ToolID)
		}
		if p.ToolName != "" {
			out, _ = sjson.SetBytes(out, "functionResponse.name", p.ToolName)
		}
		out, _ = sjson.SetRawBytes(out, "functionResponse.response", []byte(rawDefault(p.Content, "{}")))
		return out
	case KindText:
		out := []byte(`{}`)
		out, _ = sjson.SetBytes(out, "text", p.Text)
		return out
	default:
		if p.Raw != "" {
			return []byte(p.Raw)
		}
		return []byte(`{}`)
	}
}

// EmitAnthropic writes the tree back over the messages array at path.
func EmitAnthropic(body []byte, path string, msgs []Message) []byte {
	arr := []byte(`[]`)
	for _, m := range msgs {
		msg := []byte(`{}`)
		msg, _ = sjson.SetBytes(msg, "role", m.Role)
		content := []byte(`[]`)
		for _, p := range m.Parts {
			content, _ = sjson.SetRawBytes(content, "-1", emitAnthropicBlock(p))
		}
		msg, _ = sjson.SetRawBytes(msg, "content", content)
		arr, _ = sjson.SetRawBytes(arr, "-1", msg)
	}
	out, _ := sjson.SetRawBytes(body, path, arr)
	return out
}

func emitAnthropicBlock(p Part) []byte {
	switch p.Kind {
	case KindThinking:
		out := []byte(`{"type":"thinking"}`)
		out, _ = sjson.SetBytes(out, "thinking", p.Text)
		if p.Signature != "" {
			out, _ = sjson.SetBytes(out, "signature", p.Signature)
		}
		return out
	case KindToolUse:
		out := []byte(`{"type":"tool_use"}`)
		out, _ = sjson.SetBytes(out, "id", p.ToolID)
		out, _ = sjson.SetBytes(out, "name", p.ToolName)
		out, _ = sjson.SetRawBytes(out, "input", []byte(rawDefault(p.Args, "{}")))
		return out
	case KindToolResult:
		out := []byte(`{"type":"tool_result"}`)
		out, _ = sjson.SetBytes(out, "tool_use_id", p.ToolID)
		out, _ = sjson.SetRawBytes(out, "content", []byte(rawDefault(p.Content, `""`)))
		return out
	case KindText:
		out := []byte(`{"type":"text"}`)
		out, _ = sjson.SetBytes(out, "text", p.Text)
		return out
	default:
		if p.Raw != "" {
			return []byte(p.Raw)
		}
		return []byte(`{}`)
	}
}

// Parse detects which dialect shape the body carries and decodes it.
// The returned dialect is "gemini" or "anthropic"; empty when neither array
// is present.
func Parse(body []byte) (msgs []Message, dialect, path string) {
	if msgs, path = ParseGemini(body); path != "" {
		return msgs, "gemini", path
	}
	if msgs, path = ParseAnthropic(body); path != "" {
		return msgs, "anthropic", path
	}
	return nil, "", ""
}

// Emit re-encodes msgs into body at path using the named dialect.
func Emit(body []byte, dialect, path string, msgs []Message) []byte {
	if dialect == "gemini" {
		return EmitGemini(body, path, msgs)
	}
	return EmitAnthropic(body, path, msgs)
}

func rawOr(v gjson.Result, def string) string {
	if v.Exists() {
		return v.Raw
	}
	return def
}

func rawDefault(raw, def string) string {
	if raw == "" {
		return def
	}
	return raw
}
