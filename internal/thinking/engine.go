// Package thinking implements the signature lifecycle for thinking blocks:
// stripping them from inbound requests, re-injecting signed thinking where
// downstream providers require it, and synthesizing a turn boundary when a
// tool loop has no thinking left to carry forward.
package thinking

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/llmux/llmux/internal/conversation"
	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/signature"
)

// ShouldCacheSignatures gates the whole engine: openai-family models never
// carry signatures, and native gemini models only do as managed thinking
// variants.
func ShouldCacheSignatures(model string) bool {
	family := provider.Family(model)
	if family == provider.FamilyOpenAI {
		return false
	}
	if family == provider.FamilyGemini && !strings.Contains(strings.ToLower(model), "claude") {
		return provider.IsThinkingModel(model)
	}
	return true
}

type signedThinking struct {
	Text      string
	Signature string
}

// Engine holds the three signature layers: the per-session last-signed map,
// the process-global slot, and the persistent cache.
type Engine struct {
	Cache     *signature.Cache
	Global    *signature.GlobalSlot
	SessionID string

	mu         sync.Mutex
	lastSigned map[string]signedThinking // session key -> last signed thinking
}

// NewEngine wires the engine to its signature layers. sessionID is the
// process-wide random identifier minted at startup.
func NewEngine(cache *signature.Cache, global *signature.GlobalSlot, sessionID string) *Engine {
	return &Engine{
		Cache:      cache,
		Global:     global,
		SessionID:  sessionID,
		lastSigned: make(map[string]signedThinking),
	}
}

// Process runs strip, inject, and turn-separation recovery over the request
// body for an admitted model. Bodies without a recognizable conversation
// tree pass through unchanged.
func (e *Engine) Process(body []byte, model, sessionKey string) []byte {
	msgs, dialect, path := conversation.Parse(body)
	if path == "" {
		return body
	}

	family := provider.Family(model)

	// Step 1: strip every thinking part, remembering what each assistant
	// message carried so layer 3 can restore by text hash.
	stripped := make(map[int]signedThinking)
	for i := range msgs {
		msgs[i].Parts, stripped[i] = stripThinking(msgs[i].Parts)
	}

	// Step 2: inject signed thinking at position 0 of every assistant
	// message that calls a tool, plus the trailing assistant message.
	lastAssistant := -1
	for i := range msgs {
		if msgs[i].Role == conversation.RoleAssistant {
			lastAssistant = i
		}
	}
	for i := range msgs {
		if msgs[i].Role != conversation.RoleAssistant {
			continue
		}
		if !msgs[i].HasToolUse() && i != lastAssistant {
			continue
		}
		if st, ok := e.lookupSigned(sessionKey, family, stripped[i]); ok {
			msgs[i].Parts = append([]conversation.Part{{
				Kind:      conversation.KindThinking,
				Text:      st.Text,
				Signature: st.Signature,
			}}, msgs[i].Parts...)
		}
	}

	// Step 3: when the conversation still ends inside a tool loop with no
	// thinking in the current turn, append a synthetic turn boundary so
	// the model can emit a fresh thinking block. The state is computed
	// after injection, so a successful Step 2 suppresses this.
	state := AnalyzeConversation(msgs)
	if state.NeedsThinkingRecovery() {
		msgs = appendTurnSeparation(msgs)
		log.Debugf("thinking: turn-separation recovery applied (session %s)", sessionKey)
	}

	return conversation.Emit(body, dialect, path, msgs)
}

// lookupSigned walks the fallback layers for a usable signed thinking block.
func (e *Engine) lookupSigned(sessionKey, family string, orig signedThinking) (signedThinking, bool) {
	// The message's own thinking survives when its signature is intact.
	if orig.Text != "" && len(orig.Signature) >= signature.MinLength {
		return orig, true
	}

	// Layer 1: last signed thinking seen on this session key.
	e.mu.Lock()
	st, ok := e.lastSigned[sessionKey]
	e.mu.Unlock()
	if ok {
		return st, true
	}

	// Layer 2: process-global last-seen slot, gated by model family.
	if text, sig, okG := e.Global.Get(family); okG {
		return signedThinking{Text: text, Signature: sig}, true
	}

	// Layer 3: persistent cache, addressed by the stripped text's hash.
	if orig.Text != "" && e.Cache != nil {
		key := signature.Key{SessionID: sessionKey, Family: family, TextHash: signature.HashText(orig.Text)}
		if sig, okC := e.Cache.Restore(key); okC {
			return signedThinking{Text: orig.Text, Signature: sig}, true
		}
	}
	return signedThinking{}, false
}

// CacheSignatureFromChunk accumulates streamed thinking text per candidate
// index and, once the signature arrives, persists the pair in every layer.
func (e *Engine) CacheSignatureFromChunk(sessionKey, model, text, sig string, buffers map[int]*strings.Builder, idx int) {
	if buffers[idx] == nil {
		buffers[idx] = &strings.Builder{}
	}
	if text != "" {
		buffers[idx].WriteString(text)
	}
	if len(sig) < signature.MinLength {
		return
	}

	fullText := buffers[idx].String()
	family := provider.Family(model)

	if e.Cache != nil {
		e.Cache.Store(signature.Key{
			SessionID: sessionKey,
			Family:    family,
			TextHash:  signature.HashText(fullText),
		}, sig)
	}
	e.Global.Set(fullText, sig, family)

	e.mu.Lock()
	e.lastSigned[sessionKey] = signedThinking{Text: fullText, Signature: sig}
	e.mu.Unlock()
}

// stripThinking removes thinking parts from a part list, reporting the last
// one removed.
func stripThinking(parts []conversation.Part) ([]conversation.Part, signedThinking) {
	var kept []conversation.Part
	var last signedThinking
	for _, p := range parts {
		if p.Kind == conversation.KindThinking {
			last = signedThinking{Text: p.Text, Signature: p.Signature}
			continue
		}
		kept = append(kept, p)
	}
	return kept, last
}

// ConversationState captures whether the conversation sits inside a tool
// loop and whether the current turn already carries thinking.
type ConversationState struct {
	InToolLoop      bool
	TurnHasThinking bool
	TrailingResults int
}

// NeedsThinkingRecovery reports whether a synthetic turn boundary is needed.
func (s ConversationState) NeedsThinkingRecovery() bool {
	return s.InToolLoop && !s.TurnHasThinking
}

// AnalyzeConversation derives the tool-loop state. The turn spans from the
// most recent non-tool user message to the end; the trailing-result count is
// the number of consecutive tool-result messages at the tail.
func AnalyzeConversation(msgs []conversation.Message) ConversationState {
	var state ConversationState
	if len(msgs) == 0 {
		return state
	}

	last := msgs[len(msgs)-1]
	state.InToolLoop = last.Role == conversation.RoleUser && last.HasToolResult()

	turnStart := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleUser && !msgs[i].HasToolResult() {
			turnStart = i
			break
		}
	}
	for i := turnStart; i < len(msgs); i++ {
		if msgs[i].Role == conversation.RoleAssistant && msgs[i].HasThinking() {
			state.TurnHasThinking = true
			break
		}
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].HasToolResult() {
			state.TrailingResults++
			continue
		}
		break
	}
	return state
}

// appendTurnSeparation closes the tool loop with a synthetic assistant
// acknowledgement and a user continuation.
func appendTurnSeparation(msgs []conversation.Message) []conversation.Message {
	state := AnalyzeConversation(msgs)

	var ack string
	switch state.TrailingResults {
	case 0:
		ack = "[Processing previous context.]"
	case 1:
		ack = "[Tool execution completed.]"
	default:
		ack = fmt.Sprintf("[%d tool executions completed.]", state.TrailingResults)
	}

	msgs = append(msgs,
		conversation.Message{
			Role:  conversation.RoleAssistant,
			Parts: []conversation.Part{{Kind: conversation.KindText, Text: ack}},
		},
		conversation.Message{
			Role:  conversation.RoleUser,
			Parts: []conversation.Part{{Kind: conversation.KindText, Text: "[Continue]"}},
		},
	)
	return msgs
}
