package provider

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const codexEndpoint = "https://chatgpt.com/backend-api/codex/responses"

// OpenAIWebRequest is the prepared per-attempt context for the openai-web
// (Codex) upstream.
type OpenAIWebRequest struct {
	Endpoint string
	Headers  map[string]string
}

// PrepareOpenAIWebRequest resolves the Codex responses endpoint and the
// headers the backend expects.
func PrepareOpenAIWebRequest(accountID string) OpenAIWebRequest {
	headers := map[string]string{
		"OpenAI-Beta":   "responses=experimental",
		"Originator":    "codex_cli_go",
		"Accept":        "text/event-stream",
		"Content-Type":  "application/json",
		"Session-Id":    "",
		"Chatgpt-Account-Id": accountID,
	}
	return OpenAIWebRequest{Endpoint: codexEndpoint, Headers: headers}
}

// BuildCodexBody shapes an OpenAI Responses payload for the Codex backend:
// instructions plus input items, streamed, with store disabled. Reasoning
// configuration passes through when the caller supplies one.
func BuildCodexBody(body []byte, model string) []byte {
	out := []byte(`{"stream":true,"store":false}`)
	out, _ = sjson.SetBytes(out, "model", model)

	if instructions := gjson.GetBytes(body, "instructions"); instructions.Exists() {
		out, _ = sjson.SetBytes(out, "instructions", instructions.String())
	}
	if input := gjson.GetBytes(body, "input"); input.Exists() {
		out, _ = sjson.SetRawBytes(out, "input", []byte(input.Raw))
	} else if messages := gjson.GetBytes(body, "messages"); messages.Exists() {
		// Chat-style payloads carry messages; Codex wants Responses input items.
		items := []byte(`[]`)
		messages.ForEach(func(_, msg gjson.Result) bool {
			item := []byte(`{"type":"message"}`)
			item, _ = sjson.SetBytes(item, "role", msg.Get("role").String())
			content := msg.Get("content")
			if content.IsArray() {
				item, _ = sjson.SetRawBytes(item, "content", []byte(content.Raw))
			} else {
				part := []byte(`{"type":"input_text"}`)
				if msg.Get("role").String() == "assistant" {
					part, _ = sjson.SetBytes(part, "type", "output_text")
				}
				part, _ = sjson.SetBytes(part, "text", content.String())
				item, _ = sjson.SetRawBytes(item, "content", append(append([]byte(`[`), part...), ']'))
			}
			items, _ = sjson.SetRawBytes(items, "-1", item)
			return true
		})
		out, _ = sjson.SetRawBytes(out, "input", items)
	}

	if tools := gjson.GetBytes(body, "tools"); tools.Exists() {
		out, _ = sjson.SetRawBytes(out, "tools", []byte(tools.Raw))
	}
	if reasoning := gjson.GetBytes(body, "reasoning"); reasoning.Exists() {
		out, _ = sjson.SetRawBytes(out, "reasoning", []byte(reasoning.Raw))
	}
	return out
}

// DefaultEndpoint returns the provider's default streaming endpoint for the
// given dialect-native request.
func DefaultEndpoint(providerName, model string, streaming bool) string {
	switch providerName {
	case Anthropic:
		return "https://api.anthropic.com/v1/messages"
	case Gemini:
		action := "generateContent"
		if streaming {
			action = "streamGenerateContent?alt=sse"
		}
		return "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":" + action
	case OpenAIWeb:
		return codexEndpoint
	case OpencodeZen:
		return OpencodeZenEndpoint(model)
	default:
		return "https://api.openai.com/v1/chat/completions"
	}
}
