package translator

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/conversation"
)

// AnthropicToOpenAI rewrites a Messages request into Chat Completions form.
// Thinking text folds into regular content; signatures cannot cross into
// this dialect.
func AnthropicToOpenAI(model string, rawJSON []byte, stream bool) []byte {
	msgs, _ := conversation.ParseAnthropic(rawJSON)

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", model)
	if mt := gjson.GetBytes(rawJSON, "max_tokens"); mt.Exists() {
		out, _ = sjson.SetBytes(out, "max_tokens", mt.Int())
	}
	out = copyNumber(rawJSON, out, "temperature", "temperature")
	out = copyNumber(rawJSON, out, "top_p", "top_p")
	if stream {
		out, _ = sjson.SetBytes(out, "stream", true)
		out, _ = sjson.SetRawBytes(out, "stream_options", []byte(`{"include_usage":true}`))
	}

	if tools := gjson.GetBytes(rawJSON, "tools"); tools.IsArray() {
		converted := []byte(`[]`)
		tools.ForEach(func(_, tool gjson.Result) bool {
			fn := []byte(`{"type":"function","function":{}}`)
			fn, _ = sjson.SetBytes(fn, "function.name", tool.Get("name").String())
			if desc := tool.Get("description"); desc.Exists() {
				fn, _ = sjson.SetBytes(fn, "function.description", desc.String())
			}
			if schema := tool.Get("input_schema"); schema.Exists() {
				fn, _ = sjson.SetRawBytes(fn, "function.parameters", []byte(schema.Raw))
			}
			converted, _ = sjson.SetRawBytes(converted, "-1", fn)
			return true
		})
		out, _ = sjson.SetRawBytes(out, "tools", converted)
	}

	out = conversation.EmitOpenAI(out, "messages", msgs)
	return prependSystemMessage(out, systemText(rawJSON))
}

// AnthropicToGemini rewrites a Messages request into generateContent form,
// carrying thinking blocks through as thought parts with signatures intact.
func AnthropicToGemini(model string, rawJSON []byte, _ bool) []byte {
	msgs, _ := conversation.ParseAnthropic(rawJSON)

	out := []byte(`{}`)
	if system := systemText(rawJSON); system != "" {
		out, _ = sjson.SetBytes(out, "systemInstruction.parts.0.text", system)
	}

	cfg := []byte(`{}`)
	cfgSet := false
	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		cfg, _ = sjson.SetBytes(cfg, "temperature", v.Float())
		cfgSet = true
	}
	if v := gjson.GetBytes(rawJSON, "max_tokens"); v.Exists() {
		cfg, _ = sjson.SetBytes(cfg, "maxOutputTokens", v.Int())
		cfgSet = true
	}
	if thinking := gjson.GetBytes(rawJSON, "thinking"); thinking.Get("type").String() == "enabled" {
		cfg, _ = sjson.SetBytes(cfg, "thinkingConfig.includeThoughts", true)
		if budget := thinking.Get("budget_tokens"); budget.Exists() {
			cfg, _ = sjson.SetBytes(cfg, "thinkingConfig.thinkingBudget", budget.Int())
		}
		cfgSet = true
	}
	if cfgSet {
		out, _ = sjson.SetRawBytes(out, "generationConfig", cfg)
	}

	if tools := gjson.GetBytes(rawJSON, "tools"); tools.IsArray() {
		decls := []byte(`[]`)
		tools.ForEach(func(_, tool gjson.Result) bool {
			d := []byte(`{}`)
			d, _ = sjson.SetBytes(d, "name", tool.Get("name").String())
			if desc := tool.Get("description"); desc.Exists() {
				d, _ = sjson.SetBytes(d, "description", desc.String())
			}
			if schema := tool.Get("input_schema"); schema.Exists() {
				d, _ = sjson.SetRawBytes(d, "parameters", []byte(schema.Raw))
			}
			decls, _ = sjson.SetRawBytes(decls, "-1", d)
			return true
		})
		if string(decls) != `[]` {
			out, _ = sjson.SetRawBytes(out, "tools.0.functionDeclarations", decls)
		}
	}

	_ = model
	return conversation.EmitGemini(out, "contents", msgs)
}

// systemText flattens the Anthropic system field, string or block list.
func systemText(rawJSON []byte) string {
	system := gjson.GetBytes(rawJSON, "system")
	if !system.Exists() {
		return ""
	}
	if system.IsArray() {
		var text string
		system.ForEach(func(_, block gjson.Result) bool {
			text += block.Get("text").String()
			return true
		})
		return text
	}
	return system.String()
}

// prependSystemMessage inserts a system message at the head of messages.
func prependSystemMessage(body []byte, system string) []byte {
	if system == "" {
		return body
	}
	msg := []byte(`{"role":"system"}`)
	msg, _ = sjson.SetBytes(msg, "content", system)

	arr := []byte(`[]`)
	arr, _ = sjson.SetRawBytes(arr, "-1", msg)
	gjson.GetBytes(body, "messages").ForEach(func(_, m gjson.Result) bool {
		arr, _ = sjson.SetRawBytes(arr, "-1", []byte(m.Raw))
		return true
	})
	out, _ := sjson.SetRawBytes(body, "messages", arr)
	return out
}
