// Package translator rewrites request bodies between the supported wire
// dialects. Transforms register themselves per (from, to) pair; untranslated
// pairs pass the body through unchanged.
package translator

import (
	log "github.com/sirupsen/logrus"

	"github.com/llmux/llmux/internal/provider"
)

// RequestTransform converts a request payload from one dialect to another.
type RequestTransform func(model string, rawJSON []byte, stream bool) []byte

var requests = make(map[string]map[string]RequestTransform)

// Register installs a request transform for a dialect pair.
func Register(from, to string, fn RequestTransform) {
	if _, ok := requests[from]; !ok {
		requests[from] = make(map[string]RequestTransform)
	}
	requests[from][to] = fn
}

// TranslateRequest rewrites rawJSON from one dialect to another. Identity
// pairs and unknown pairs return the input untouched.
func TranslateRequest(from, to, model string, rawJSON []byte, stream bool) []byte {
	if from == to {
		return rawJSON
	}
	if fn, ok := requests[from][to]; ok {
		return fn(model, rawJSON, stream)
	}
	log.Debugf("translator: no request transform %s -> %s, passing through", from, to)
	return rawJSON
}

func init() {
	Register(provider.DialectOpenAI, provider.DialectAnthropic, OpenAIToAnthropic)
	Register(provider.DialectOpenAI, provider.DialectGemini, OpenAIToGemini)
	Register(provider.DialectAnthropic, provider.DialectOpenAI, AnthropicToOpenAI)
	Register(provider.DialectAnthropic, provider.DialectGemini, AnthropicToGemini)
	Register(provider.DialectGemini, provider.DialectOpenAI, GeminiToOpenAI)
	Register(provider.DialectGemini, provider.DialectAnthropic, GeminiToAnthropic)

	// The Responses dialect routes through the Chat Completions shape.
	Register(provider.DialectOpenAIResponses, provider.DialectOpenAI, ResponsesToOpenAI)
	Register(provider.DialectOpenAIResponses, provider.DialectAnthropic, compose(ResponsesToOpenAI, OpenAIToAnthropic))
	Register(provider.DialectOpenAIResponses, provider.DialectGemini, compose(ResponsesToOpenAI, OpenAIToGemini))
	Register(provider.DialectOpenAI, provider.DialectOpenAIResponses, OpenAIToResponses)
	Register(provider.DialectAnthropic, provider.DialectOpenAIResponses, compose(AnthropicToOpenAI, OpenAIToResponses))
	Register(provider.DialectGemini, provider.DialectOpenAIResponses, compose(GeminiToOpenAI, OpenAIToResponses))
}

func compose(first, second RequestTransform) RequestTransform {
	return func(model string, rawJSON []byte, stream bool) []byte {
		return second(model, first(model, rawJSON, stream), stream)
	}
}
