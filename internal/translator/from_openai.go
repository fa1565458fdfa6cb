package translator

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/conversation"
)

const defaultMaxTokens = 8192

// OpenAIToAnthropic rewrites a Chat Completions request into the Messages
// dialect. System/developer messages move to the top-level system field and
// function tools become input_schema tools.
func OpenAIToAnthropic(model string, rawJSON []byte, stream bool) []byte {
	msgs, _ := conversation.ParseOpenAI(rawJSON)
	system, rest := splitSystem(msgs)

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetBytes(out, "max_tokens", maxTokens(rawJSON))
	if system != "" {
		out, _ = sjson.SetBytes(out, "system", system)
	}
	out = copyNumber(rawJSON, out, "temperature", "temperature")
	out = copyNumber(rawJSON, out, "top_p", "top_p")
	if stream {
		out, _ = sjson.SetBytes(out, "stream", true)
	}

	if tools := gjson.GetBytes(rawJSON, "tools"); tools.IsArray() {
		converted := []byte(`[]`)
		tools.ForEach(func(_, tool gjson.Result) bool {
			fn := tool.Get("function")
			if !fn.Exists() {
				return true
			}
			t := []byte(`{}`)
			t, _ = sjson.SetBytes(t, "name", fn.Get("name").String())
			if desc := fn.Get("description"); desc.Exists() {
				t, _ = sjson.SetBytes(t, "description", desc.String())
			}
			if params := fn.Get("parameters"); params.Exists() {
				t, _ = sjson.SetRawBytes(t, "input_schema", []byte(params.Raw))
			} else {
				t, _ = sjson.SetRawBytes(t, "input_schema", []byte(`{"type":"object"}`))
			}
			converted, _ = sjson.SetRawBytes(converted, "-1", t)
			return true
		})
		out, _ = sjson.SetRawBytes(out, "tools", converted)
	}

	return conversation.EmitAnthropic(out, "messages", rest)
}

// OpenAIToGemini rewrites a Chat Completions request into generateContent
// form: contents, systemInstruction, functionDeclarations, generationConfig.
func OpenAIToGemini(model string, rawJSON []byte, _ bool) []byte {
	msgs, _ := conversation.ParseOpenAI(rawJSON)
	system, rest := splitSystem(msgs)

	out := []byte(`{}`)
	if system != "" {
		out, _ = sjson.SetBytes(out, "systemInstruction.parts.0.text", system)
	}

	cfg := []byte(`{}`)
	cfgSet := false
	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		cfg, _ = sjson.SetBytes(cfg, "temperature", v.Float())
		cfgSet = true
	}
	if v := gjson.GetBytes(rawJSON, "top_p"); v.Exists() {
		cfg, _ = sjson.SetBytes(cfg, "topP", v.Float())
		cfgSet = true
	}
	if mt := maxTokensOptional(rawJSON); mt > 0 {
		cfg, _ = sjson.SetBytes(cfg, "maxOutputTokens", mt)
		cfgSet = true
	}
	if cfgSet {
		out, _ = sjson.SetRawBytes(out, "generationConfig", cfg)
	}

	if tools := gjson.GetBytes(rawJSON, "tools"); tools.IsArray() {
		decls := []byte(`[]`)
		tools.ForEach(func(_, tool gjson.Result) bool {
			fn := tool.Get("function")
			if !fn.Exists() {
				return true
			}
			d := []byte(`{}`)
			d, _ = sjson.SetBytes(d, "name", fn.Get("name").String())
			if desc := fn.Get("description"); desc.Exists() {
				d, _ = sjson.SetBytes(d, "description", desc.String())
			}
			if params := fn.Get("parameters"); params.Exists() {
				d, _ = sjson.SetRawBytes(d, "parameters", []byte(params.Raw))
			}
			decls, _ = sjson.SetRawBytes(decls, "-1", d)
			return true
		})
		if string(decls) != `[]` {
			out, _ = sjson.SetRawBytes(out, "tools.0.functionDeclarations", decls)
		}
	}

	_ = model
	return conversation.EmitGemini(out, "contents", rest)
}

// OpenAIToResponses lifts a Chat Completions payload into the Responses
// dialect: system text becomes instructions, messages become input items.
func OpenAIToResponses(model string, rawJSON []byte, stream bool) []byte {
	msgs, _ := conversation.ParseOpenAI(rawJSON)
	system, rest := splitSystem(msgs)

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", model)
	if system != "" {
		out, _ = sjson.SetBytes(out, "instructions", system)
	}
	if stream {
		out, _ = sjson.SetBytes(out, "stream", true)
	}

	items := []byte(`[]`)
	for _, m := range rest {
		item := []byte(`{"type":"message"}`)
		item, _ = sjson.SetBytes(item, "role", m.Role)
		content := []byte(`[]`)
		for _, p := range m.Parts {
			if p.Kind != conversation.KindText {
				continue
			}
			kind := "input_text"
			if m.Role == conversation.RoleAssistant {
				kind = "output_text"
			}
			block := []byte(`{}`)
			block, _ = sjson.SetBytes(block, "type", kind)
			block, _ = sjson.SetBytes(block, "text", p.Text)
			content, _ = sjson.SetRawBytes(content, "-1", block)
		}
		item, _ = sjson.SetRawBytes(item, "content", content)
		items, _ = sjson.SetRawBytes(items, "-1", item)
	}
	out, _ = sjson.SetRawBytes(out, "input", items)

	if reasoning := gjson.GetBytes(rawJSON, "reasoning"); reasoning.Exists() {
		out, _ = sjson.SetRawBytes(out, "reasoning", []byte(reasoning.Raw))
	}
	return out
}

// splitSystem separates leading system text from the dialog messages.
func splitSystem(msgs []conversation.Message) (string, []conversation.Message) {
	var system string
	var rest []conversation.Message
	for _, m := range msgs {
		if m.Role == conversation.RoleSystem {
			for _, p := range m.Parts {
				system += p.Text
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func maxTokens(rawJSON []byte) int64 {
	if mt := maxTokensOptional(rawJSON); mt > 0 {
		return mt
	}
	return defaultMaxTokens
}

func maxTokensOptional(rawJSON []byte) int64 {
	for _, field := range []string{"max_tokens", "max_completion_tokens", "max_output_tokens"} {
		if v := gjson.GetBytes(rawJSON, field); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

func copyNumber(src, dst []byte, from, to string) []byte {
	if v := gjson.GetBytes(src, from); v.Exists() {
		dst, _ = sjson.SetBytes(dst, to, v.Float())
	}
	return dst
}
