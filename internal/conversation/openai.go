package conversation

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ParseOpenAI decodes an OpenAI Chat Completions messages array. Tool-call
// arguments arrive as JSON strings and are canonicalized to raw objects;
// system/developer messages map to the system role.
func ParseOpenAI(body []byte) (msgs []Message, path string) {
	path = "messages"
	messages := gjson.GetBytes(body, "messages")
	if !messages.Exists() {
		return nil, ""
	}

	messages.ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		switch role {
		case "developer":
			role = RoleSystem
		case "tool":
			msgs = append(msgs, Message{
				Role: RoleUser,
				Parts: []Part{{
					Kind:    KindToolResult,
					ToolID:  msg.Get("tool_call_id").String(),
					Content: quoteIfNeeded(msg.Get("content")),
				}},
			})
			return true
		}

		m := Message{Role: role}
		content := msg.Get("content")
		if content.IsArray() {
			content.ForEach(func(_, block gjson.Result) bool {
				if block.Get("type").String() == "text" {
					m.Parts = append(m.Parts, Part{Kind: KindText, Text: block.Get("text").String()})
				} else {
					m.Parts = append(m.Parts, Part{Kind: KindOther, Raw: block.Raw})
				}
				return true
			})
		} else if content.Exists() && content.String() != "" {
			m.Parts = append(m.Parts, Part{Kind: KindText, Text: content.String()})
		}

		msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
			args := call.Get("function.arguments").String()
			if args == "" || !gjson.Valid(args) {
				args = "{}"
			}
			m.Parts = append(m.Parts, Part{
				Kind:     KindToolUse,
				ToolID:   call.Get("id").String(),
				ToolName: call.Get("function.name").String(),
				Args:     args,
			})
			return true
		})

		msgs = append(msgs, m)
		return true
	})
	return msgs, path
}

// EmitOpenAI writes the tree back as Chat Completions messages. Tool results
// become role "tool" messages; tool-call arguments are re-encoded as JSON
// strings.
func EmitOpenAI(body []byte, path string, msgs []Message) []byte {
	arr := []byte(`[]`)
	for _, m := range msgs {
		// Tool results are standalone tool-role messages in this dialect.
		var rest []Part
		for _, p := range m.Parts {
			if p.Kind == KindToolResult {
				msg := []byte(`{"role":"tool"}`)
				msg, _ = sjson.SetBytes(msg, "tool_call_id", p.ToolID)
				msg, _ = sjson.SetBytes(msg, "content", resultText(p.Content))
				arr, _ = sjson.SetRawBytes(arr, "-1", msg)
				continue
			}
			rest = append(rest, p)
		}
		if len(rest) == 0 {
			continue
		}

		msg := []byte(`{}`)
		msg, _ = sjson.SetBytes(msg, "role", m.Role)
		var text string
		toolCalls := []byte(`[]`)
		hasTools := false
		for _, p := range rest {
			switch p.Kind {
			case KindText, KindThinking:
				// This dialect has no thinking channel; text survives,
				// signatures do not.
				text += p.Text
			case KindToolUse:
				call := []byte(`{"type":"function"}`)
				call, _ = sjson.SetBytes(call, "id", p.ToolID)
				call, _ = sjson.SetBytes(call, "function.name", p.ToolName)
				call, _ = sjson.SetBytes(call, "function.arguments", rawDefault(p.Args, "{}"))
				toolCalls, _ = sjson.SetRawBytes(toolCalls, "-1", call)
				hasTools = true
			}
		}
		msg, _ = sjson.SetBytes(msg, "content", text)
		if hasTools {
			msg, _ = sjson.SetRawBytes(msg, "tool_calls", toolCalls)
		}
		arr, _ = sjson.SetRawBytes(arr, "-1", msg)
	}
	out, _ := sjson.SetRawBytes(body, path, arr)
	return out
}

// resultText flattens a tool-result payload to the plain string this dialect
// expects.
func resultText(raw string) string {
	if raw == "" {
		return ""
	}
	parsed := gjson.Parse(raw)
	if parsed.Type == gjson.String {
		return parsed.String()
	}
	if parsed.IsArray() {
		var text string
		parsed.ForEach(func(_, block gjson.Result) bool {
			text += block.Get("text").String()
			return true
		})
		if text != "" {
			return text
		}
	}
	return raw
}

func quoteIfNeeded(v gjson.Result) string {
	if v.IsArray() || v.IsObject() {
		return v.Raw
	}
	quoted, _ := json.Marshal(v.String())
	return string(quoted)
}
