package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/sse"
)

// Emitter rebuilds outgoing SSE frames for one target dialect. Emitters are
// stateful; one instance serves exactly one stream.
type Emitter interface {
	// Emit renders a unified event as zero or more complete SSE frames,
	// blank-line separator included.
	Emit(ev Event) [][]byte
}

// NewEmitter returns the emitter for a target dialect.
func NewEmitter(dialect, model string) Emitter {
	switch dialect {
	case provider.DialectAnthropic:
		return &anthropicEmitter{model: model, openIndex: -1}
	case provider.DialectGemini:
		return &geminiEmitter{model: model, toolArgs: make(map[int]*strings.Builder)}
	default:
		return &openaiEmitter{
			model:   model,
			id:      "chatcmpl-" + uuid.NewString(),
			created: time.Now().Unix(),
		}
	}
}

func frame(data []byte) []byte {
	return []byte("data: " + string(data) + "\n\n")
}

func namedFrame(name string, data []byte) []byte {
	return []byte("event: " + name + "\ndata: " + string(data) + "\n\n")
}

// anthropicEmitter writes the Messages stream protocol: message_start, one
// content block per output segment, message_delta, message_stop.
type anthropicEmitter struct {
	model     string
	started   bool
	openIndex int
	openKind  Kind
}

func (e *anthropicEmitter) Emit(ev Event) [][]byte {
	var out [][]byte

	switch ev.Kind {
	case KindUnknown:
		return nil
	case KindDone:
		return nil
	case KindMessageStart:
		out = append(out, e.start(ev.InputTokens))
		return out
	}

	if !e.started {
		out = append(out, e.start(0))
	}

	switch ev.Kind {
	case KindTextDelta:
		if ev.Text == "" {
			return out
		}
		out = append(out, e.ensureBlock(KindTextDelta, `{"type":"text","text":""}`)...)
		delta, _ := sjson.SetBytes([]byte(`{"type":"content_block_delta","delta":{"type":"text_delta"}}`), "delta.text", ev.Text)
		delta, _ = sjson.SetBytes(delta, "index", e.openIndex)
		out = append(out, namedFrame("content_block_delta", delta))
	case KindThinkingDelta:
		out = append(out, e.ensureBlock(KindThinkingDelta, `{"type":"thinking","thinking":""}`)...)
		if ev.Text != "" {
			delta, _ := sjson.SetBytes([]byte(`{"type":"content_block_delta","delta":{"type":"thinking_delta"}}`), "delta.thinking", ev.Text)
			delta, _ = sjson.SetBytes(delta, "index", e.openIndex)
			out = append(out, namedFrame("content_block_delta", delta))
		}
		if ev.Signature != "" {
			delta, _ := sjson.SetBytes([]byte(`{"type":"content_block_delta","delta":{"type":"signature_delta"}}`), "delta.signature", ev.Signature)
			delta, _ = sjson.SetBytes(delta, "index", e.openIndex)
			out = append(out, namedFrame("content_block_delta", delta))
		}
	case KindToolCall:
		out = append(out, e.closeBlock()...)
		e.openIndex++
		e.openKind = KindToolCall
		block := []byte(`{"type":"content_block_start","content_block":{"type":"tool_use","input":{}}}`)
		block, _ = sjson.SetBytes(block, "index", e.openIndex)
		block, _ = sjson.SetBytes(block, "content_block.id", ev.ToolID)
		block, _ = sjson.SetBytes(block, "content_block.name", ev.ToolName)
		out = append(out, namedFrame("content_block_start", block))
		if ev.ToolArgs != "" {
			out = append(out, e.argsDelta(ev.ToolArgs))
		}
	case KindToolArgsDelta:
		if e.openKind != KindToolCall {
			out = append(out, e.ensureBlock(KindToolCall, `{"type":"tool_use","input":{}}`)...)
		}
		out = append(out, e.argsDelta(ev.ToolArgs))
	case KindFinish:
		out = append(out, e.closeBlock()...)
		delta := []byte(`{"type":"message_delta","delta":{},"usage":{}}`)
		delta, _ = sjson.SetBytes(delta, "delta.stop_reason", ev.StopReason)
		delta, _ = sjson.SetBytes(delta, "usage.output_tokens", ev.OutputTokens)
		out = append(out, namedFrame("message_delta", delta))
		out = append(out, namedFrame("message_stop", []byte(`{"type":"message_stop"}`)))
	}
	return out
}

func (e *anthropicEmitter) start(inputTokens int64) []byte {
	e.started = true
	msg := []byte(`{"type":"message_start","message":{"type":"message","role":"assistant","content":[],"stop_reason":null,"usage":{"output_tokens":0}}}`)
	msg, _ = sjson.SetBytes(msg, "message.id", "msg_"+uuid.NewString())
	msg, _ = sjson.SetBytes(msg, "message.model", e.model)
	msg, _ = sjson.SetBytes(msg, "message.usage.input_tokens", inputTokens)
	return namedFrame("message_start", msg)
}

func (e *anthropicEmitter) ensureBlock(kind Kind, blockJSON string) [][]byte {
	if e.openIndex >= 0 && e.openKind == kind {
		return nil
	}
	out := e.closeBlock()
	e.openIndex++
	e.openKind = kind
	block, _ := sjson.SetRawBytes([]byte(`{"type":"content_block_start"}`), "content_block", []byte(blockJSON))
	block, _ = sjson.SetBytes(block, "index", e.openIndex)
	return append(out, namedFrame("content_block_start", block))
}

func (e *anthropicEmitter) closeBlock() [][]byte {
	if e.openIndex < 0 || e.openKind == KindUnknown {
		return nil
	}
	stop, _ := sjson.SetBytes([]byte(`{"type":"content_block_stop"}`), "index", e.openIndex)
	e.openKind = KindUnknown
	return [][]byte{namedFrame("content_block_stop", stop)}
}

func (e *anthropicEmitter) argsDelta(partial string) []byte {
	delta, _ := sjson.SetBytes([]byte(`{"type":"content_block_delta","delta":{"type":"input_json_delta"}}`), "delta.partial_json", partial)
	delta, _ = sjson.SetBytes(delta, "index", e.openIndex)
	return namedFrame("content_block_delta", delta)
}

// openaiEmitter writes Chat Completions chunk frames.
type openaiEmitter struct {
	model    string
	id       string
	created  int64
	toolSeen map[int]bool
	doneSent bool
}

func (e *openaiEmitter) Emit(ev Event) [][]byte {
	switch ev.Kind {
	case KindUnknown, KindMessageStart:
		return nil
	case KindDone:
		if e.doneSent {
			return nil
		}
		e.doneSent = true
		return [][]byte{frame([]byte(sse.Done))}
	}

	chunk := e.envelope(ev.Index)
	switch ev.Kind {
	case KindTextDelta:
		if ev.Text == "" {
			return nil
		}
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.content", ev.Text)
	case KindThinkingDelta:
		if ev.Text == "" {
			return nil
		}
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.reasoning_content", ev.Text)
	case KindToolCall:
		if e.toolSeen == nil {
			e.toolSeen = make(map[int]bool)
		}
		e.toolSeen[ev.Index] = true
		call := []byte(`{"type":"function","function":{"arguments":""}}`)
		call, _ = sjson.SetBytes(call, "index", ev.Index)
		call, _ = sjson.SetBytes(call, "id", ev.ToolID)
		call, _ = sjson.SetBytes(call, "function.name", ev.ToolName)
		if ev.ToolArgs != "" {
			call, _ = sjson.SetBytes(call, "function.arguments", ev.ToolArgs)
		}
		chunk, _ = sjson.SetRawBytes(chunk, "choices.0.delta.tool_calls.0", call)
		chunk, _ = sjson.SetBytes(chunk, "choices.0.index", 0)
	case KindToolArgsDelta:
		call := []byte(`{"function":{}}`)
		call, _ = sjson.SetBytes(call, "index", ev.Index)
		call, _ = sjson.SetBytes(call, "function.arguments", ev.ToolArgs)
		chunk, _ = sjson.SetRawBytes(chunk, "choices.0.delta.tool_calls.0", call)
		chunk, _ = sjson.SetBytes(chunk, "choices.0.index", 0)
	case KindFinish:
		chunk, _ = sjson.SetBytes(chunk, "choices.0.finish_reason", openaiFinishReason(ev.StopReason))
		if ev.InputTokens > 0 || ev.OutputTokens > 0 {
			chunk, _ = sjson.SetBytes(chunk, "usage.prompt_tokens", ev.InputTokens)
			chunk, _ = sjson.SetBytes(chunk, "usage.completion_tokens", ev.OutputTokens)
			chunk, _ = sjson.SetBytes(chunk, "usage.total_tokens", ev.InputTokens+ev.OutputTokens)
		}
		// Upstreams that speak other dialects end with their own stop
		// frames, never [DONE]; synthesize it so openai clients see the
		// stream terminate.
		e.doneSent = true
		return [][]byte{frame(chunk), frame([]byte(sse.Done))}
	}
	return [][]byte{frame(chunk)}
}

func (e *openaiEmitter) envelope(index int) []byte {
	chunk := []byte(fmt.Sprintf(`{"object":"chat.completion.chunk","created":%d,"choices":[{"index":%d,"delta":{}}]}`, e.created, index))
	chunk, _ = sjson.SetBytes(chunk, "id", e.id)
	chunk, _ = sjson.SetBytes(chunk, "model", e.model)
	return chunk
}

func openaiFinishReason(stop string) string {
	switch stop {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

// geminiEmitter writes generateContent candidate frames. Tool arguments
// arrive as partial JSON in other dialects, so they buffer until the call is
// complete.
type geminiEmitter struct {
	model    string
	toolArgs map[int]*strings.Builder
	toolName map[int]string
}

func (e *geminiEmitter) Emit(ev Event) [][]byte {
	switch ev.Kind {
	case KindUnknown, KindMessageStart, KindDone:
		return nil
	case KindTextDelta:
		if ev.Text == "" {
			return nil
		}
		return [][]byte{frame(e.candidate(ev.Index, mustSet(`{}`, "text", ev.Text), ""))}
	case KindThinkingDelta:
		part := []byte(`{"thought":true}`)
		if ev.Text != "" {
			part, _ = sjson.SetBytes(part, "text", ev.Text)
		}
		if ev.Signature != "" {
			part, _ = sjson.SetBytes(part, "thoughtSignature", ev.Signature)
		}
		return [][]byte{frame(e.candidate(ev.Index, part, ""))}
	case KindToolCall:
		out := e.flushTool(ev.Index)
		if e.toolName == nil {
			e.toolName = make(map[int]string)
		}
		e.toolName[ev.Index] = ev.ToolName
		e.toolArgs[ev.Index] = &strings.Builder{}
		if ev.ToolArgs != "" {
			e.toolArgs[ev.Index].WriteString(ev.ToolArgs)
		}
		return out
	case KindToolArgsDelta:
		if e.toolArgs[ev.Index] == nil {
			e.toolArgs[ev.Index] = &strings.Builder{}
		}
		e.toolArgs[ev.Index].WriteString(ev.ToolArgs)
		return nil
	case KindFinish:
		out := e.flushTool(ev.Index)
		fin := e.candidateShell(ev.Index)
		fin, _ = sjson.SetBytes(fin, "candidates.0.finishReason", geminiFinishReason(ev.StopReason))
		if ev.InputTokens > 0 || ev.OutputTokens > 0 {
			fin, _ = sjson.SetBytes(fin, "usageMetadata.promptTokenCount", ev.InputTokens)
			fin, _ = sjson.SetBytes(fin, "usageMetadata.candidatesTokenCount", ev.OutputTokens)
			fin, _ = sjson.SetBytes(fin, "usageMetadata.totalTokenCount", ev.InputTokens+ev.OutputTokens)
		}
		return append(out, frame(fin))
	}
	return nil
}

func (e *geminiEmitter) flushTool(idx int) [][]byte {
	buf := e.toolArgs[idx]
	name := e.toolName[idx]
	if buf == nil && name == "" {
		return nil
	}
	delete(e.toolArgs, idx)
	delete(e.toolName, idx)
	if name == "" {
		return nil
	}

	call := []byte(`{"functionCall":{"args":{}}}`)
	call, _ = sjson.SetBytes(call, "functionCall.name", name)
	if buf != nil && gjson.Valid(buf.String()) && buf.Len() > 0 {
		call, _ = sjson.SetRawBytes(call, "functionCall.args", []byte(buf.String()))
	}
	return [][]byte{frame(e.candidate(idx, call, ""))}
}

func (e *geminiEmitter) candidate(idx int, part []byte, finish string) []byte {
	body := e.candidateShell(idx)
	body, _ = sjson.SetRawBytes(body, "candidates.0.content.parts.0", part)
	body, _ = sjson.SetBytes(body, "candidates.0.content.role", "model")
	if finish != "" {
		body, _ = sjson.SetBytes(body, "candidates.0.finishReason", finish)
	}
	return body
}

func (e *geminiEmitter) candidateShell(idx int) []byte {
	body := []byte(`{"candidates":[{}]}`)
	body, _ = sjson.SetBytes(body, "candidates.0.index", idx)
	body, _ = sjson.SetBytes(body, "modelVersion", e.model)
	return body
}

func geminiFinishReason(stop string) string {
	switch stop {
	case "max_tokens":
		return "MAX_TOKENS"
	default:
		return "STOP"
	}
}

func mustSet(base, path, value string) []byte {
	out, _ := sjson.SetBytes([]byte(base), path, value)
	return out
}
