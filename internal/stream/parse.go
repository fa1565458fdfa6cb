package stream

import (
	"github.com/tidwall/gjson"

	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/sse"
)

// Parse decodes a frame from the given source dialect into unified events.
// Frames the parser cannot make sense of come back as a single KindUnknown
// event carrying the original payload.
func Parse(dialect string, ev sse.Event) []Event {
	if ev.IsDone() {
		return []Event{{Kind: KindDone, Raw: ev.Raw}}
	}
	if len(ev.Data) == 0 || !gjson.ValidBytes(ev.Data) {
		return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
	}
	switch dialect {
	case provider.DialectAnthropic:
		return parseAnthropic(ev)
	case provider.DialectGemini:
		return parseGemini(ev)
	case provider.DialectOpenAI, provider.DialectOpenAIResponses:
		return parseOpenAI(ev)
	}
	return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
}

func parseAnthropic(ev sse.Event) []Event {
	data := ev.Data
	root := gjson.ParseBytes(data)
	idx := int(root.Get("index").Int())

	switch root.Get("type").String() {
	case "message_start":
		return []Event{{
			Kind:        KindMessageStart,
			InputTokens: root.Get("message.usage.input_tokens").Int(),
			Raw:         ev.Raw,
		}}
	case "content_block_start":
		block := root.Get("content_block")
		switch block.Get("type").String() {
		case "tool_use":
			return []Event{{
				Kind:     KindToolCall,
				Index:    idx,
				ToolID:   block.Get("id").String(),
				ToolName: block.Get("name").String(),
				Raw:      ev.Raw,
			}}
		case "thinking":
			return []Event{{
				Kind:      KindThinkingDelta,
				Index:     idx,
				Text:      block.Get("thinking").String(),
				Signature: block.Get("signature").String(),
				Raw:       ev.Raw,
			}}
		default:
			return []Event{{
				Kind:  KindTextDelta,
				Index: idx,
				Text:  block.Get("text").String(),
				Raw:   ev.Raw,
			}}
		}
	case "content_block_delta":
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "thinking_delta":
			return []Event{{Kind: KindThinkingDelta, Index: idx, Text: delta.Get("thinking").String(), Raw: ev.Raw}}
		case "signature_delta":
			return []Event{{Kind: KindThinkingDelta, Index: idx, Signature: delta.Get("signature").String(), Raw: ev.Raw}}
		case "input_json_delta":
			return []Event{{Kind: KindToolArgsDelta, Index: idx, ToolArgs: delta.Get("partial_json").String(), Raw: ev.Raw}}
		default:
			return []Event{{Kind: KindTextDelta, Index: idx, Text: delta.Get("text").String(), Raw: ev.Raw}}
		}
	case "message_delta":
		return []Event{{
			Kind:         KindFinish,
			StopReason:   root.Get("delta.stop_reason").String(),
			OutputTokens: root.Get("usage.output_tokens").Int(),
			Raw:          ev.Raw,
		}}
	case "content_block_stop", "message_stop", "ping":
		return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
	}
	return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
}

func parseGemini(ev sse.Event) []Event {
	root := gjson.ParseBytes(ev.Data)
	candidates := root.Get("candidates")
	if !candidates.Exists() {
		return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
	}

	var events []Event
	candidates.ForEach(func(_, cand gjson.Result) bool {
		idx := int(cand.Get("index").Int())
		cand.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
			switch {
			case part.Get("functionCall").Exists():
				fc := part.Get("functionCall")
				events = append(events, Event{
					Kind:     KindToolCall,
					Index:    idx,
					ToolID:   fc.Get("id").String(),
					ToolName: fc.Get("name").String(),
					ToolArgs: fc.Get("args").Raw,
					Raw:      ev.Raw,
				})
			case part.Get("thought").Bool():
				events = append(events, Event{
					Kind:      KindThinkingDelta,
					Index:     idx,
					Text:      part.Get("text").String(),
					Signature: geminiPartSignature(part),
					Raw:       ev.Raw,
				})
			case part.Get("text").Exists():
				events = append(events, Event{Kind: KindTextDelta, Index: idx, Text: part.Get("text").String(), Raw: ev.Raw})
			}
			return true
		})
		if fr := cand.Get("finishReason"); fr.Exists() && fr.String() != "" {
			events = append(events, Event{
				Kind:         KindFinish,
				Index:        idx,
				StopReason:   geminiStopReason(fr.String()),
				InputTokens:  root.Get("usageMetadata.promptTokenCount").Int(),
				OutputTokens: root.Get("usageMetadata.candidatesTokenCount").Int(),
				Raw:          ev.Raw,
			})
		}
		return true
	})
	if len(events) == 0 {
		return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
	}
	return events
}

func parseOpenAI(ev sse.Event) []Event {
	root := gjson.ParseBytes(ev.Data)
	choices := root.Get("choices")
	if !choices.Exists() {
		return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
	}

	var events []Event
	choices.ForEach(func(_, choice gjson.Result) bool {
		idx := int(choice.Get("index").Int())
		delta := choice.Get("delta")

		if v := delta.Get("reasoning_content"); v.Exists() && v.String() != "" {
			events = append(events, Event{Kind: KindThinkingDelta, Index: idx, Text: v.String(), Raw: ev.Raw})
		}
		if v := delta.Get("content"); v.Exists() && v.String() != "" {
			events = append(events, Event{Kind: KindTextDelta, Index: idx, Text: v.String(), Raw: ev.Raw})
		}
		delta.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
			callIdx := int(call.Get("index").Int())
			if name := call.Get("function.name"); name.Exists() && name.String() != "" {
				events = append(events, Event{
					Kind:     KindToolCall,
					Index:    callIdx,
					ToolID:   call.Get("id").String(),
					ToolName: name.String(),
					Raw:      ev.Raw,
				})
			}
			if args := call.Get("function.arguments"); args.Exists() && args.String() != "" {
				events = append(events, Event{Kind: KindToolArgsDelta, Index: callIdx, ToolArgs: args.String(), Raw: ev.Raw})
			}
			return true
		})
		if fr := choice.Get("finish_reason"); fr.Exists() && fr.String() != "" {
			events = append(events, Event{
				Kind:         KindFinish,
				Index:        idx,
				StopReason:   openaiStopReason(fr.String()),
				InputTokens:  root.Get("usage.prompt_tokens").Int(),
				OutputTokens: root.Get("usage.completion_tokens").Int(),
				Raw:          ev.Raw,
			})
		}
		return true
	})
	if len(events) == 0 {
		return []Event{{Kind: KindUnknown, Raw: ev.Raw}}
	}
	return events
}

func geminiPartSignature(part gjson.Result) string {
	for _, field := range []string{"thoughtSignature", "thought_signature", "signature"} {
		if v := part.Get(field); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// Stop reasons are carried in the Anthropic vocabulary internally.
func geminiStopReason(reason string) string {
	switch reason {
	case "STOP":
		return "end_turn"
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
