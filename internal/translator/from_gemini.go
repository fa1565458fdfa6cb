package translator

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/conversation"
)

// GeminiToAnthropic rewrites a generateContent request into the Messages
// dialect, mapping thought parts back to thinking blocks.
func GeminiToAnthropic(model string, rawJSON []byte, stream bool) []byte {
	msgs, _ := conversation.ParseGemini(rawJSON)

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", model)
	if system := geminiSystemText(rawJSON); system != "" {
		out, _ = sjson.SetBytes(out, "system", system)
	}

	cfg := gjson.GetBytes(rawJSON, "generationConfig")
	if mt := cfg.Get("maxOutputTokens"); mt.Exists() {
		out, _ = sjson.SetBytes(out, "max_tokens", mt.Int())
	} else {
		out, _ = sjson.SetBytes(out, "max_tokens", int64(defaultMaxTokens))
	}
	if v := cfg.Get("temperature"); v.Exists() {
		out, _ = sjson.SetBytes(out, "temperature", v.Float())
	}
	if tc := cfg.Get("thinkingConfig"); tc.Get("includeThoughts").Bool() {
		thinking := []byte(`{"type":"enabled"}`)
		if budget := tc.Get("thinkingBudget"); budget.Exists() {
			thinking, _ = sjson.SetBytes(thinking, "budget_tokens", budget.Int())
		}
		out, _ = sjson.SetRawBytes(out, "thinking", thinking)
	}
	if stream {
		out, _ = sjson.SetBytes(out, "stream", true)
	}

	if decls := gjson.GetBytes(rawJSON, "tools.0.functionDeclarations"); decls.IsArray() {
		converted := []byte(`[]`)
		decls.ForEach(func(_, d gjson.Result) bool {
			t := []byte(`{}`)
			t, _ = sjson.SetBytes(t, "name", d.Get("name").String())
			if desc := d.Get("description"); desc.Exists() {
				t, _ = sjson.SetBytes(t, "description", desc.String())
			}
			if params := d.Get("parameters"); params.Exists() {
				t, _ = sjson.SetRawBytes(t, "input_schema", []byte(params.Raw))
			} else {
				t, _ = sjson.SetRawBytes(t, "input_schema", []byte(`{"type":"object"}`))
			}
			converted, _ = sjson.SetRawBytes(converted, "-1", t)
			return true
		})
		out, _ = sjson.SetRawBytes(out, "tools", converted)
	}

	return conversation.EmitAnthropic(out, "messages", msgs)
}

// GeminiToOpenAI rewrites a generateContent request into Chat Completions
// form.
func GeminiToOpenAI(model string, rawJSON []byte, stream bool) []byte {
	msgs, _ := conversation.ParseGemini(rawJSON)

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", model)

	cfg := gjson.GetBytes(rawJSON, "generationConfig")
	if v := cfg.Get("temperature"); v.Exists() {
		out, _ = sjson.SetBytes(out, "temperature", v.Float())
	}
	if v := cfg.Get("topP"); v.Exists() {
		out, _ = sjson.SetBytes(out, "top_p", v.Float())
	}
	if mt := cfg.Get("maxOutputTokens"); mt.Exists() {
		out, _ = sjson.SetBytes(out, "max_tokens", mt.Int())
	}
	if stream {
		out, _ = sjson.SetBytes(out, "stream", true)
		out, _ = sjson.SetRawBytes(out, "stream_options", []byte(`{"include_usage":true}`))
	}

	if decls := gjson.GetBytes(rawJSON, "tools.0.functionDeclarations"); decls.IsArray() {
		converted := []byte(`[]`)
		decls.ForEach(func(_, d gjson.Result) bool {
			fn := []byte(`{"type":"function","function":{}}`)
			fn, _ = sjson.SetBytes(fn, "function.name", d.Get("name").String())
			if desc := d.Get("description"); desc.Exists() {
				fn, _ = sjson.SetBytes(fn, "function.description", desc.String())
			}
			if params := d.Get("parameters"); params.Exists() {
				fn, _ = sjson.SetRawBytes(fn, "function.parameters", []byte(params.Raw))
			}
			converted, _ = sjson.SetRawBytes(converted, "-1", fn)
			return true
		})
		out, _ = sjson.SetRawBytes(out, "tools", converted)
	}

	out = conversation.EmitOpenAI(out, "messages", msgs)
	return prependSystemMessage(out, geminiSystemText(rawJSON))
}

func geminiSystemText(rawJSON []byte) string {
	for _, path := range []string{"systemInstruction.parts", "system_instruction.parts"} {
		parts := gjson.GetBytes(rawJSON, path)
		if !parts.Exists() {
			continue
		}
		var text string
		parts.ForEach(func(_, part gjson.Result) bool {
			text += part.Get("text").String()
			return true
		})
		return text
	}
	return ""
}
