package provider

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const opencodeZenBase = "https://opencode.ai"

// OpencodeZenEndpoint maps a model prefix to its wire protocol and returns
// the fixed streaming URL for that protocol.
func OpencodeZenEndpoint(model string) string {
	switch opencodeZenProtocol(model) {
	case DialectAnthropic:
		return opencodeZenBase + "/zen/v1/messages"
	case DialectGemini:
		return opencodeZenBase + "/zen/v1/generateContent"
	default:
		return opencodeZenBase + "/zen/v1/chat/completions"
	}
}

// OpencodeZenProtocol exposes the dialect the zen endpoint speaks for model.
func OpencodeZenProtocol(model string) string { return opencodeZenProtocol(model) }

func opencodeZenProtocol(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude-"):
		return DialectAnthropic
	case strings.HasPrefix(lower, "gemini-"):
		return DialectGemini
	default:
		return DialectOpenAI
	}
}

// FixupOpencodeZen applies the body adjustments the zen upstream requires:
// recursive cache_control removal, reasoning_effort removal, forced-off
// thinking for glm/kimi models, and Anthropic-style tool definitions
// rewritten into OpenAI function format.
func FixupOpencodeZen(body []byte, model string, thinkingEnabled bool) []byte {
	body = stripFieldDeep(body, "cache_control")
	body, _ = sjson.DeleteBytes(body, "reasoning_effort")

	lower := strings.ToLower(model)
	if (strings.HasPrefix(lower, "glm-") || strings.HasPrefix(lower, "kimi-")) && !thinkingEnabled {
		body, _ = sjson.SetRawBytes(body, "thinking", []byte(`{"type":"disabled"}`))
	}

	if gjson.GetBytes(body, "tools.0.input_schema").Exists() {
		tools := gjson.GetBytes(body, "tools")
		rewritten := []byte(`[]`)
		tools.ForEach(func(_, tool gjson.Result) bool {
			fn := []byte(`{"type":"function","function":{}}`)
			fn, _ = sjson.SetBytes(fn, "function.name", tool.Get("name").String())
			if desc := tool.Get("description"); desc.Exists() {
				fn, _ = sjson.SetBytes(fn, "function.description", desc.String())
			}
			if schema := tool.Get("input_schema"); schema.Exists() {
				fn, _ = sjson.SetRawBytes(fn, "function.parameters", []byte(schema.Raw))
			}
			rewritten, _ = sjson.SetRawBytes(rewritten, "-1", fn)
			return true
		})
		body, _ = sjson.SetRawBytes(body, "tools", rewritten)
	}

	return body
}

// stripFieldDeep removes every occurrence of field at any depth. Paths are
// collected first so deletions do not invalidate iteration order.
func stripFieldDeep(body []byte, field string) []byte {
	var paths []string
	collectFieldPaths(gjson.ParseBytes(body), "", field, &paths)
	// Delete deepest paths first so parent indexes stay valid.
	for i := len(paths) - 1; i >= 0; i-- {
		body, _ = sjson.DeleteBytes(body, paths[i])
	}
	return body
}

func collectFieldPaths(node gjson.Result, prefix, field string, out *[]string) {
	if !node.IsObject() && !node.IsArray() {
		return
	}
	node.ForEach(func(key, value gjson.Result) bool {
		var path string
		if node.IsArray() {
			path = prefix + "." + key.String()
			if prefix == "" {
				path = key.String()
			}
		} else {
			escaped := strings.ReplaceAll(key.String(), ".", `\.`)
			if prefix == "" {
				path = escaped
			} else {
				path = prefix + "." + escaped
			}
			if key.String() == field {
				*out = append(*out, path)
				return true
			}
		}
		collectFieldPaths(value, path, field, out)
		return true
	})
}
