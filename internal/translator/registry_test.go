package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/llmux/llmux/internal/provider"
)

func TestTranslateRequestIdentity(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[]}`)
	out := TranslateRequest(provider.DialectOpenAI, provider.DialectOpenAI, "gpt-4o", body, false)
	assert.Equal(t, string(body), string(out))
}

func TestOpenAIToAnthropic(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"temperature": 0.7,
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "", "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"go\"}"}}
			]},
			{"role": "tool", "tool_call_id": "call_1", "content": "found it"}
		],
		"tools": [{"type": "function", "function": {"name": "lookup", "description": "search", "parameters": {"type": "object"}}}]
	}`)

	out := TranslateRequest(provider.DialectOpenAI, provider.DialectAnthropic, "claude-sonnet-4", body, true)

	assert.Equal(t, "claude-sonnet-4", gjson.GetBytes(out, "model").String())
	assert.Equal(t, "be brief", gjson.GetBytes(out, "system").String())
	assert.Equal(t, int64(8192), gjson.GetBytes(out, "max_tokens").Int())
	assert.True(t, gjson.GetBytes(out, "stream").Bool())
	assert.InDelta(t, 0.7, gjson.GetBytes(out, "temperature").Float(), 1e-9)

	msgs := gjson.GetBytes(out, "messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Get("role").String())
	assert.Equal(t, "tool_use", msgs[1].Get("content.0.type").String())
	assert.Equal(t, "call_1", msgs[1].Get("content.0.id").String())
	assert.Equal(t, "go", msgs[1].Get("content.0.input.q").String())
	assert.Equal(t, "tool_result", msgs[2].Get("content.0.type").String())
	assert.Equal(t, "call_1", msgs[2].Get("content.0.tool_use_id").String())

	assert.Equal(t, "lookup", gjson.GetBytes(out, "tools.0.name").String())
	assert.Equal(t, "object", gjson.GetBytes(out, "tools.0.input_schema.type").String())
}

func TestOpenAIToGemini(t *testing.T) {
	body := []byte(`{
		"model": "gpt-4o",
		"max_tokens": 1024,
		"top_p": 0.9,
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello back"}
		],
		"tools": [{"type": "function", "function": {"name": "lookup", "parameters": {"type": "object"}}}]
	}`)

	out := TranslateRequest(provider.DialectOpenAI, provider.DialectGemini, "gemini-2.5-pro", body, false)

	assert.Equal(t, "be brief", gjson.GetBytes(out, "systemInstruction.parts.0.text").String())
	assert.Equal(t, int64(1024), gjson.GetBytes(out, "generationConfig.maxOutputTokens").Int())
	assert.InDelta(t, 0.9, gjson.GetBytes(out, "generationConfig.topP").Float(), 1e-9)

	contents := gjson.GetBytes(out, "contents").Array()
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Get("role").String())
	assert.Equal(t, "model", contents[1].Get("role").String())
	assert.Equal(t, "hello back", contents[1].Get("parts.0.text").String())

	assert.Equal(t, "lookup", gjson.GetBytes(out, "tools.0.functionDeclarations.0.name").String())
}

func TestAnthropicToGeminiCarriesThinking(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4",
		"max_tokens": 2048,
		"thinking": {"type": "enabled", "budget_tokens": 4096},
		"system": "rules",
		"messages": [
			{"role": "user", "content": "go"},
			{"role": "assistant", "content": [
				{"type": "thinking", "thinking": "plan first", "signature": "sig-abcdefghijklmnopqrstuvwxyz-0123456789-abcdefghijklmn"},
				{"type": "tool_use", "id": "t1", "name": "run", "input": {"cmd": "ls"}}
			]}
		]
	}`)

	out := TranslateRequest(provider.DialectAnthropic, provider.DialectGemini, "gemini-claude-sonnet-4", body, false)

	assert.True(t, gjson.GetBytes(out, "generationConfig.thinkingConfig.includeThoughts").Bool())
	assert.Equal(t, int64(4096), gjson.GetBytes(out, "generationConfig.thinkingConfig.thinkingBudget").Int())
	assert.Equal(t, "rules", gjson.GetBytes(out, "systemInstruction.parts.0.text").String())

	parts := gjson.GetBytes(out, "contents.1.parts").Array()
	require.Len(t, parts, 2)
	assert.True(t, parts[0].Get("thought").Bool())
	assert.Equal(t, "plan first", parts[0].Get("text").String())
	assert.NotEmpty(t, parts[0].Get("thoughtSignature").String())
	assert.Equal(t, "run", parts[1].Get("functionCall.name").String())
}

func TestGeminiToAnthropicRoundTripShapes(t *testing.T) {
	body := []byte(`{
		"systemInstruction": {"parts": [{"text": "rules"}]},
		"generationConfig": {"maxOutputTokens": 512, "thinkingConfig": {"includeThoughts": true, "thinkingBudget": 1024}},
		"contents": [
			{"role": "user", "parts": [{"text": "hi"}]},
			{"role": "model", "parts": [{"functionCall": {"name": "run", "args": {"cmd": "ls"}}}]},
			{"role": "user", "parts": [{"functionResponse": {"name": "run", "response": {"output": "ok"}}}]}
		],
		"tools": [{"functionDeclarations": [{"name": "run", "parameters": {"type": "object"}}]}]
	}`)

	out := TranslateRequest(provider.DialectGemini, provider.DialectAnthropic, "claude-sonnet-4", body, false)

	assert.Equal(t, "rules", gjson.GetBytes(out, "system").String())
	assert.Equal(t, int64(512), gjson.GetBytes(out, "max_tokens").Int())
	assert.Equal(t, "enabled", gjson.GetBytes(out, "thinking.type").String())
	assert.Equal(t, int64(1024), gjson.GetBytes(out, "thinking.budget_tokens").Int())

	msgs := gjson.GetBytes(out, "messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Get("role").String())
	assert.Equal(t, "tool_use", msgs[1].Get("content.0.type").String())
	assert.Equal(t, "tool_result", msgs[2].Get("content.0.type").String())
	assert.Equal(t, "run", gjson.GetBytes(out, "tools.0.name").String())
}

func TestResponsesToOpenAI(t *testing.T) {
	body := []byte(`{
		"instructions": "stay terse",
		"max_output_tokens": 256,
		"input": [
			{"type": "message", "role": "user", "content": [{"type": "input_text", "text": "hello"}]},
			{"type": "function_call", "call_id": "c1", "name": "run", "arguments": "{\"cmd\":\"ls\"}"},
			{"type": "function_call_output", "call_id": "c1", "output": "ok"}
		],
		"tools": [{"type": "function", "name": "run", "parameters": {"type": "object"}}]
	}`)

	out := TranslateRequest(provider.DialectOpenAIResponses, provider.DialectOpenAI, "gpt-5", body, true)

	assert.Equal(t, "gpt-5", gjson.GetBytes(out, "model").String())
	assert.True(t, gjson.GetBytes(out, "stream").Bool())
	assert.Equal(t, int64(256), gjson.GetBytes(out, "max_tokens").Int())

	msgs := gjson.GetBytes(out, "messages").Array()
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, "stay terse", msgs[0].Get("content").String())
	assert.Equal(t, "hello", msgs[1].Get("content").String())
	assert.Equal(t, "c1", msgs[2].Get("tool_calls.0.id").String())
	assert.Equal(t, "tool", msgs[3].Get("role").String())
	assert.Equal(t, "ok", msgs[3].Get("content").String())

	assert.Equal(t, "run", gjson.GetBytes(out, "tools.0.function.name").String())
}

func TestResponsesToGeminiComposed(t *testing.T) {
	body := []byte(`{
		"instructions": "short",
		"input": "ping"
	}`)
	out := TranslateRequest(provider.DialectOpenAIResponses, provider.DialectGemini, "gemini-2.5-flash", body, false)

	assert.Equal(t, "short", gjson.GetBytes(out, "systemInstruction.parts.0.text").String())
	assert.Equal(t, "ping", gjson.GetBytes(out, "contents.0.parts.0.text").String())
}
