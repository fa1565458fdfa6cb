package proxy

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/llmux/llmux/internal/config"
	"github.com/llmux/llmux/internal/routing"
)

func classifyCore() *Core {
	core := newTestCore(map[string]routing.Mapping{
		"gpt-4": {Provider: "openai", Model: "gpt-4", Fallbacks: []string{"claude-3-opus"}},
		"claude-3-opus": {Provider: "anthropic", Model: "claude-3-opus"},
	}, "openai", "anthropic")
	core.Markers = config.ErrorMarkers{
		ProjectNotFound:    []string{"project not found"},
		CorruptedSignature: []string{"corrupted thought signature"},
	}
	return core
}

func TestClassify429SwitchesToFallback(t *testing.T) {
	core := classifyCore()
	dec := core.classify(errorContext{
		Target:        routing.Target{Provider: "openai", Model: "gpt-4"},
		OriginalModel: "gpt-4",
		Status:        http.StatusTooManyRequests,
		ErrorText:     `{"error":{"message":"rate limited"}}`,
	})
	assert.Equal(t, ActionSwitchModel, dec.Action)
	assert.Equal(t, "anthropic", dec.NewTarget.Provider)
	assert.Equal(t, "claude-3-opus", dec.NewTarget.Model)
}

func TestClassify429AllCooldownWithoutFallback(t *testing.T) {
	core := classifyCore()
	dec := core.classify(errorContext{
		Target:        routing.Target{Provider: "anthropic", Model: "claude-3-opus"},
		OriginalModel: "claude-3-opus",
		Status:        http.StatusTooManyRequests,
	})
	assert.Equal(t, ActionAllCooldown, dec.Action)
}

func TestClassifyAuthRotatesThenThrows(t *testing.T) {
	core := classifyCore()
	core.Tokens.RegisterKey("openai", "second", "key-2")

	dec := core.classify(errorContext{
		Target:       routing.Target{Provider: "openai", Model: "gpt-4"},
		Status:       http.StatusUnauthorized,
		AccountIndex: 0,
	})
	assert.Equal(t, ActionRotateAccount, dec.Action)

	dec = core.classify(errorContext{
		Target:       routing.Target{Provider: "openai", Model: "gpt-4"},
		Status:       http.StatusUnauthorized,
		AccountIndex: 1,
		ErrorText:    "invalid api key",
	})
	assert.Equal(t, ActionThrow, dec.Action)
	assert.Equal(t, "invalid api key", dec.Message)
}

func TestClassifyAntigravityProjectNotFound(t *testing.T) {
	core := classifyCore()
	dec := core.classify(errorContext{
		Target:    routing.Target{Provider: "antigravity", Model: "gemini-3-pro"},
		Status:    http.StatusNotFound,
		ErrorText: "Requested entity was not found: project not found",
	})
	assert.Equal(t, ActionProjectOverride, dec.Action)

	dec = core.classify(errorContext{
		Target:    routing.Target{Provider: "gemini", Model: "gemini-2.5-pro"},
		Status:    http.StatusNotFound,
		ErrorText: "project not found",
	})
	assert.Equal(t, ActionThrow, dec.Action)
}

func TestClassifyCorruptedSignature(t *testing.T) {
	core := classifyCore()
	dec := core.classify(errorContext{
		Target:    routing.Target{Provider: "antigravity", Model: "gemini-claude-sonnet-4"},
		Status:    http.StatusBadRequest,
		ErrorText: `{"error":{"message":"Corrupted thought signature in request"}}`,
	})
	assert.Equal(t, ActionStripSignatures, dec.Action)

	dec = core.classify(errorContext{
		Target:    routing.Target{Provider: "openai", Model: "gpt-4"},
		Status:    http.StatusBadRequest,
		ErrorText: "unknown field",
	})
	assert.Equal(t, ActionThrow, dec.Action)
}

func TestClassify5xxRetries(t *testing.T) {
	core := classifyCore()
	dec := core.classify(errorContext{
		Target: routing.Target{Provider: "openai", Model: "gpt-4"},
		Status: http.StatusBadGateway,
	})
	assert.Equal(t, ActionRetry, dec.Action)
	assert.Equal(t, core.shortDelay(), dec.Delay)
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, parseRetryAfter(h, ""))

	assert.Equal(t, 7*time.Second, parseRetryAfter(nil, `{"error":{"retryDelay":"7s"}}`))
	assert.Equal(t, 5*time.Second, parseRetryAfter(nil, `{"error":{"retry_after":5}}`))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(nil, "not json"))
	assert.Equal(t, defaultRetryAfter, parseRetryAfter(http.Header{}, ""))
}
