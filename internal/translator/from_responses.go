package translator

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ResponsesToOpenAI lowers an OpenAI Responses payload into Chat Completions
// form so the cross-dialect transforms can take it from there.
func ResponsesToOpenAI(model string, rawJSON []byte, stream bool) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", model)
	if stream {
		out, _ = sjson.SetBytes(out, "stream", true)
	}
	out = copyNumber(rawJSON, out, "temperature", "temperature")
	out = copyNumber(rawJSON, out, "top_p", "top_p")
	if v := gjson.GetBytes(rawJSON, "max_output_tokens"); v.Exists() {
		out, _ = sjson.SetBytes(out, "max_tokens", v.Int())
	}

	messages := []byte(`[]`)
	if instructions := gjson.GetBytes(rawJSON, "instructions"); instructions.String() != "" {
		msg := []byte(`{"role":"system"}`)
		msg, _ = sjson.SetBytes(msg, "content", instructions.String())
		messages, _ = sjson.SetRawBytes(messages, "-1", msg)
	}

	input := gjson.GetBytes(rawJSON, "input")
	if input.Type == gjson.String {
		msg := []byte(`{"role":"user"}`)
		msg, _ = sjson.SetBytes(msg, "content", input.String())
		messages, _ = sjson.SetRawBytes(messages, "-1", msg)
	} else {
		input.ForEach(func(_, item gjson.Result) bool {
			switch item.Get("type").String() {
			case "message", "":
				msg := []byte(`{}`)
				msg, _ = sjson.SetBytes(msg, "role", item.Get("role").String())
				msg, _ = sjson.SetBytes(msg, "content", itemText(item))
				messages, _ = sjson.SetRawBytes(messages, "-1", msg)
			case "function_call":
				msg := []byte(`{"role":"assistant","content":""}`)
				call := []byte(`{"type":"function"}`)
				call, _ = sjson.SetBytes(call, "id", item.Get("call_id").String())
				call, _ = sjson.SetBytes(call, "function.name", item.Get("name").String())
				call, _ = sjson.SetBytes(call, "function.arguments", item.Get("arguments").String())
				msg, _ = sjson.SetRawBytes(msg, "tool_calls.0", call)
				messages, _ = sjson.SetRawBytes(messages, "-1", msg)
			case "function_call_output":
				msg := []byte(`{"role":"tool"}`)
				msg, _ = sjson.SetBytes(msg, "tool_call_id", item.Get("call_id").String())
				msg, _ = sjson.SetBytes(msg, "content", item.Get("output").String())
				messages, _ = sjson.SetRawBytes(messages, "-1", msg)
			}
			return true
		})
	}
	out, _ = sjson.SetRawBytes(out, "messages", messages)

	if tools := gjson.GetBytes(rawJSON, "tools"); tools.IsArray() {
		converted := []byte(`[]`)
		tools.ForEach(func(_, tool gjson.Result) bool {
			// Responses tools are flat; Chat Completions nests them.
			if tool.Get("function").Exists() {
				converted, _ = sjson.SetRawBytes(converted, "-1", []byte(tool.Raw))
				return true
			}
			fn := []byte(`{"type":"function","function":{}}`)
			fn, _ = sjson.SetBytes(fn, "function.name", tool.Get("name").String())
			if desc := tool.Get("description"); desc.Exists() {
				fn, _ = sjson.SetBytes(fn, "function.description", desc.String())
			}
			if params := tool.Get("parameters"); params.Exists() {
				fn, _ = sjson.SetRawBytes(fn, "function.parameters", []byte(params.Raw))
			}
			converted, _ = sjson.SetRawBytes(converted, "-1", fn)
			return true
		})
		out, _ = sjson.SetRawBytes(out, "tools", converted)
	}
	return out
}

func itemText(item gjson.Result) string {
	content := item.Get("content")
	if content.Type == gjson.String {
		return content.String()
	}
	var text string
	content.ForEach(func(_, block gjson.Result) bool {
		text += block.Get("text").String()
		return true
	})
	return text
}
