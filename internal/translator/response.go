package translator

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/provider"
)

// unaryResult is a dialect-neutral view of a complete response.
type unaryResult struct {
	text         string
	thinking     string
	signature    string
	tools        []unaryTool
	stopReason   string
	inputTokens  int64
	outputTokens int64
}

type unaryTool struct {
	id   string
	name string
	args string
}

// TranslateResponse rewrites a complete (non-streaming) response body from
// one dialect to another. Identity and unknown pairs pass through.
func TranslateResponse(from, to, model string, body []byte) []byte {
	if from == to || !gjson.ValidBytes(body) {
		return body
	}

	var res unaryResult
	switch from {
	case provider.DialectAnthropic:
		res = parseAnthropicResponse(body)
	case provider.DialectGemini:
		res = parseGeminiResponse(body)
	case provider.DialectOpenAI, provider.DialectOpenAIResponses:
		res = parseOpenAIResponse(body)
	default:
		return body
	}

	switch to {
	case provider.DialectAnthropic:
		return emitAnthropicResponse(model, res)
	case provider.DialectGemini:
		return emitGeminiResponse(model, res)
	case provider.DialectOpenAI, provider.DialectOpenAIResponses:
		return emitOpenAIResponse(model, res)
	}
	return body
}

func parseAnthropicResponse(body []byte) unaryResult {
	var res unaryResult
	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			res.text += block.Get("text").String()
		case "thinking":
			res.thinking += block.Get("thinking").String()
			if sig := block.Get("signature").String(); sig != "" {
				res.signature = sig
			}
		case "tool_use":
			res.tools = append(res.tools, unaryTool{
				id:   block.Get("id").String(),
				name: block.Get("name").String(),
				args: rawOrEmptyObject(block.Get("input")),
			})
		}
		return true
	})
	res.stopReason = gjson.GetBytes(body, "stop_reason").String()
	res.inputTokens = gjson.GetBytes(body, "usage.input_tokens").Int()
	res.outputTokens = gjson.GetBytes(body, "usage.output_tokens").Int()
	return res
}

func parseGeminiResponse(body []byte) unaryResult {
	var res unaryResult
	cand := gjson.GetBytes(body, "candidates.0")
	cand.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		switch {
		case part.Get("functionCall").Exists():
			fc := part.Get("functionCall")
			res.tools = append(res.tools, unaryTool{
				id:   fc.Get("id").String(),
				name: fc.Get("name").String(),
				args: rawOrEmptyObject(fc.Get("args")),
			})
		case part.Get("thought").Bool():
			res.thinking += part.Get("text").String()
			for _, f := range []string{"thoughtSignature", "thought_signature", "signature"} {
				if sig := part.Get(f).String(); sig != "" {
					res.signature = sig
				}
			}
		default:
			res.text += part.Get("text").String()
		}
		return true
	})
	res.stopReason = geminiStopReason(cand.Get("finishReason").String())
	if len(res.tools) > 0 && res.stopReason == "end_turn" {
		res.stopReason = "tool_use"
	}
	res.inputTokens = gjson.GetBytes(body, "usageMetadata.promptTokenCount").Int()
	res.outputTokens = gjson.GetBytes(body, "usageMetadata.candidatesTokenCount").Int()
	return res
}

func parseOpenAIResponse(body []byte) unaryResult {
	var res unaryResult
	choice := gjson.GetBytes(body, "choices.0")
	msg := choice.Get("message")
	res.text = msg.Get("content").String()
	res.thinking = msg.Get("reasoning_content").String()
	msg.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
		res.tools = append(res.tools, unaryTool{
			id:   call.Get("id").String(),
			name: call.Get("function.name").String(),
			args: argsRaw(call.Get("function.arguments")),
		})
		return true
	})
	res.stopReason = openaiStopReason(choice.Get("finish_reason").String())
	res.inputTokens = gjson.GetBytes(body, "usage.prompt_tokens").Int()
	res.outputTokens = gjson.GetBytes(body, "usage.completion_tokens").Int()
	return res
}

func emitAnthropicResponse(model string, res unaryResult) []byte {
	out := []byte(`{"type":"message","role":"assistant","content":[]}`)
	out, _ = sjson.SetBytes(out, "id", "msg_"+uuid.NewString())
	out, _ = sjson.SetBytes(out, "model", model)

	if res.thinking != "" {
		block, _ := sjson.SetBytes([]byte(`{"type":"thinking"}`), "thinking", res.thinking)
		if res.signature != "" {
			block, _ = sjson.SetBytes(block, "signature", res.signature)
		}
		out, _ = sjson.SetRawBytes(out, "content.-1", block)
	}
	if res.text != "" {
		block, _ := sjson.SetBytes([]byte(`{"type":"text"}`), "text", res.text)
		out, _ = sjson.SetRawBytes(out, "content.-1", block)
	}
	for _, tool := range res.tools {
		block := []byte(`{"type":"tool_use"}`)
		block, _ = sjson.SetBytes(block, "id", toolID(tool.id))
		block, _ = sjson.SetBytes(block, "name", tool.name)
		block, _ = sjson.SetRawBytes(block, "input", []byte(tool.args))
		out, _ = sjson.SetRawBytes(out, "content.-1", block)
	}

	stop := res.stopReason
	if stop == "" {
		stop = "end_turn"
	}
	out, _ = sjson.SetBytes(out, "stop_reason", stop)
	out, _ = sjson.SetBytes(out, "usage.input_tokens", res.inputTokens)
	out, _ = sjson.SetBytes(out, "usage.output_tokens", res.outputTokens)
	return out
}

func emitGeminiResponse(model string, res unaryResult) []byte {
	out := []byte(`{"candidates":[{"content":{"role":"model","parts":[]},"index":0}]}`)
	out, _ = sjson.SetBytes(out, "modelVersion", model)

	if res.thinking != "" {
		part, _ := sjson.SetBytes([]byte(`{"thought":true}`), "text", res.thinking)
		if res.signature != "" {
			part, _ = sjson.SetBytes(part, "thoughtSignature", res.signature)
		}
		out, _ = sjson.SetRawBytes(out, "candidates.0.content.parts.-1", part)
	}
	if res.text != "" {
		part, _ := sjson.SetBytes([]byte(`{}`), "text", res.text)
		out, _ = sjson.SetRawBytes(out, "candidates.0.content.parts.-1", part)
	}
	for _, tool := range res.tools {
		part := []byte(`{"functionCall":{}}`)
		part, _ = sjson.SetBytes(part, "functionCall.name", tool.name)
		part, _ = sjson.SetRawBytes(part, "functionCall.args", []byte(tool.args))
		out, _ = sjson.SetRawBytes(out, "candidates.0.content.parts.-1", part)
	}
	out, _ = sjson.SetBytes(out, "candidates.0.finishReason", geminiFinishReason(res.stopReason))
	out, _ = sjson.SetBytes(out, "usageMetadata.promptTokenCount", res.inputTokens)
	out, _ = sjson.SetBytes(out, "usageMetadata.candidatesTokenCount", res.outputTokens)
	out, _ = sjson.SetBytes(out, "usageMetadata.totalTokenCount", res.inputTokens+res.outputTokens)
	return out
}

func emitOpenAIResponse(model string, res unaryResult) []byte {
	out := []byte(`{"object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant"}}]}`)
	out, _ = sjson.SetBytes(out, "id", "chatcmpl-"+uuid.NewString())
	out, _ = sjson.SetBytes(out, "created", time.Now().Unix())
	out, _ = sjson.SetBytes(out, "model", model)

	out, _ = sjson.SetBytes(out, "choices.0.message.content", res.text)
	if res.thinking != "" {
		out, _ = sjson.SetBytes(out, "choices.0.message.reasoning_content", res.thinking)
	}
	for i, tool := range res.tools {
		call := []byte(`{"type":"function","function":{}}`)
		call, _ = sjson.SetBytes(call, "id", toolID(tool.id))
		call, _ = sjson.SetBytes(call, "function.name", tool.name)
		call, _ = sjson.SetBytes(call, "function.arguments", tool.args)
		out, _ = sjson.SetRawBytes(out, "choices.0.message.tool_calls."+strconv.Itoa(i), call)
	}
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason", openaiFinishReasonFromStop(res.stopReason))
	out, _ = sjson.SetBytes(out, "usage.prompt_tokens", res.inputTokens)
	out, _ = sjson.SetBytes(out, "usage.completion_tokens", res.outputTokens)
	out, _ = sjson.SetBytes(out, "usage.total_tokens", res.inputTokens+res.outputTokens)
	return out
}

func openaiFinishReasonFromStop(stop string) string {
	switch stop {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

func geminiFinishReason(stop string) string {
	if stop == "max_tokens" {
		return "MAX_TOKENS"
	}
	return "STOP"
}

func geminiStopReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

func openaiStopReason(reason string) string {
	switch reason {
	case "tool_calls":
		return "tool_use"
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

func toolID(id string) string {
	if id != "" {
		return id
	}
	return "call_" + uuid.NewString()
}

func rawOrEmptyObject(v gjson.Result) string {
	if v.Exists() && v.IsObject() {
		return v.Raw
	}
	return "{}"
}

// argsRaw normalizes tool arguments that arrive as a JSON-encoded string.
func argsRaw(v gjson.Result) string {
	s := v.String()
	if gjson.Valid(s) && s != "" {
		return s
	}
	return "{}"
}
