// Package provider defines the upstream providers the gateway can dispatch
// to: their identifiers, model-name inference rules, model families, and the
// per-provider request fixups applied after dialect translation.
package provider

import "strings"

// Provider identifiers. These are the only values accepted in model mappings
// and "model:provider" suffixes.
const (
	OpenAI      = "openai"
	Anthropic   = "anthropic"
	Gemini      = "gemini"
	Antigravity = "antigravity"
	OpenAIWeb   = "openai-web"
	OpencodeZen = "opencode-zen"
)

// Model families used to gate signature caching policy.
const (
	FamilyClaude = "claude"
	FamilyGemini = "gemini"
	FamilyOpenAI = "openai"
)

var all = []string{OpenAI, Anthropic, Gemini, Antigravity, OpenAIWeb, OpencodeZen}

// Valid reports whether name is a known provider identifier. Comparison is
// case-sensitive: mapping suffixes must name providers exactly.
func Valid(name string) bool {
	for _, p := range all {
		if p == name {
			return true
		}
	}
	return false
}

// All returns the known provider identifiers in dispatch-preference order.
func All() []string {
	return append([]string(nil), all...)
}

// prefixRule maps a model-name prefix to its home provider. More specific
// prefixes must come first; InferFromModel takes the first match.
type prefixRule struct {
	prefix   string
	provider string
}

var prefixRules = []prefixRule{
	{"gemini-claude-", Antigravity},
	{"gemini-3-", Antigravity},
	{"claude-", Anthropic},
	{"gemini-", Gemini},
	{"codex-", OpenAIWeb},
	{"glm-", OpencodeZen},
	{"kimi-", OpencodeZen},
	{"gpt-", OpenAI},
	{"o1", OpenAI},
	{"o3", OpenAI},
	{"o4", OpenAI},
}

// InferFromModel guesses the provider for an unmapped model name. Unknown
// names default to openai, matching the widest compatible dialect.
func InferFromModel(model string) string {
	lower := strings.ToLower(strings.TrimSpace(model))
	for _, r := range prefixRules {
		if strings.HasPrefix(lower, r.prefix) {
			return r.provider
		}
	}
	return OpenAI
}

// Family classifies a model into the coarse signature-policy family.
func Family(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "claude"):
		return FamilyClaude
	case strings.HasPrefix(lower, "gemini"):
		return FamilyGemini
	default:
		return FamilyOpenAI
	}
}

// IsThinkingModel reports whether model is a managed thinking variant.
// Claude models always qualify; gemini-family models only when they carry an
// explicit thinking marker in the name.
func IsThinkingModel(model string) bool {
	lower := strings.ToLower(model)
	switch Family(lower) {
	case FamilyClaude:
		return true
	case FamilyGemini:
		return strings.Contains(lower, "thinking") || strings.Contains(lower, "-high") || strings.Contains(lower, "-low")
	default:
		return false
	}
}

// CooldownKey builds the canonical "provider:model" cooldown key.
func CooldownKey(provider, model string) string {
	return provider + ":" + model
}

// Dialect identifiers for request and stream translation.
const (
	DialectOpenAI          = "openai"
	DialectOpenAIResponses = "openai-responses"
	DialectAnthropic       = "anthropic"
	DialectGemini          = "gemini"
)

// Dialect returns the native wire dialect spoken by a provider.
func Dialect(provider string) string {
	switch provider {
	case Anthropic:
		return DialectAnthropic
	case Gemini, Antigravity:
		return DialectGemini
	case OpenAIWeb:
		return DialectOpenAIResponses
	default:
		return DialectOpenAI
	}
}
