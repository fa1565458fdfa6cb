package routing

import (
	"testing"

	"github.com/llmux/llmux/internal/cooldown"
)

func scenarioRouter() *Router {
	mappings := map[string]Mapping{
		"gpt-4":         {Provider: "openai", Model: "gpt-4", Fallbacks: []string{"gpt-3.5-turbo", "claude-3-opus"}},
		"gpt-3.5-turbo": {Provider: "openai", Model: "gpt-3.5-turbo"},
		"claude-3-opus": {Provider: "anthropic", Model: "claude-3-opus"},
	}
	return NewRouter(mappings, nil, true, cooldown.NewManager())
}

func TestResolveModel_PrimaryWhenClear(t *testing.T) {
	r := scenarioRouter()
	got := r.ResolveModel("gpt-4")
	if got.Provider != "openai" || got.Model != "gpt-4" {
		t.Errorf("got %+v, want openai/gpt-4", got)
	}
}

func TestResolveModel_FallbackChain(t *testing.T) {
	r := scenarioRouter()
	r.HandleRateLimit("openai:gpt-4", 0)
	r.HandleRateLimit("openai:gpt-3.5-turbo", 0)

	got := r.ResolveModel("gpt-4")
	if got.Provider != "anthropic" || got.Model != "claude-3-opus" {
		t.Errorf("got %+v, want anthropic/claude-3-opus", got)
	}

	r.HandleRateLimit("anthropic:claude-3-opus", 0)
	got = r.ResolveModel("gpt-4")
	if got.Provider != "openai" || got.Model != "gpt-4" {
		t.Errorf("all-cooldown resolve = %+v, want primary openai/gpt-4", got)
	}
}

func TestResolveModel_SuccessClearsCooldown(t *testing.T) {
	r := scenarioRouter()
	r.HandleRateLimit("openai:gpt-4", 0)
	r.HandleSuccess("openai", "gpt-4")

	got := r.ResolveModel("gpt-4")
	if got.Model != "gpt-4" {
		t.Errorf("got %+v after success reset", got)
	}
}

func TestResolveModel_UnmappedInference(t *testing.T) {
	r := NewRouter(nil, nil, false, cooldown.NewManager())

	cases := []struct {
		model    string
		provider string
	}{
		{"gpt-4o", "openai"},
		{"claude-3-5-sonnet", "anthropic"},
		{"gemini-2.5-pro", "gemini"},
		{"gemini-claude-opus-4-5-thinking", "antigravity"},
		{"glm-4.6", "opencode-zen"},
		{"totally-unknown", "openai"},
	}
	for _, tc := range cases {
		got := r.ResolveModel(tc.model)
		if got.Provider != tc.provider {
			t.Errorf("ResolveModel(%q).Provider = %q, want %q", tc.model, got.Provider, tc.provider)
		}
	}
}

func TestResolveModel_InlineProviderSuffix(t *testing.T) {
	r := NewRouter(nil, nil, false, cooldown.NewManager())
	got := r.ResolveModel("my-model:anthropic")
	if got.Provider != "anthropic" || got.Model != "my-model" {
		t.Errorf("got %+v", got)
	}
}

func TestResolveModel_ProviderFallbackOrder(t *testing.T) {
	mappings := map[string]Mapping{
		"gpt-4": {Provider: "openai", Model: "gpt-4"},
	}
	r := NewRouter(mappings, []string{"anthropic", "gemini"}, true, cooldown.NewManager())
	r.HandleRateLimit("openai:gpt-4", 0)

	got := r.ResolveModel("gpt-4")
	if got.Provider != "anthropic" || got.Model != "gpt-4" {
		t.Errorf("got %+v, want anthropic/gpt-4", got)
	}

	r.HandleRateLimit("anthropic:gpt-4", 0)
	got = r.ResolveModel("gpt-4")
	if got.Provider != "gemini" {
		t.Errorf("got %+v, want gemini/gpt-4", got)
	}

	r.HandleRateLimit("gemini:gpt-4", 0)
	got = r.ResolveModel("gpt-4")
	if got.Provider != "openai" {
		t.Errorf("all-cooldown resolve = %+v, want primary openai/gpt-4", got)
	}
}

func TestResolveModel_MappingFallbacksBeatProviderOrder(t *testing.T) {
	mappings := map[string]Mapping{
		"gpt-4":         {Provider: "openai", Model: "gpt-4", Fallbacks: []string{"gpt-3.5-turbo"}},
		"gpt-3.5-turbo": {Provider: "openai", Model: "gpt-3.5-turbo"},
	}
	r := NewRouter(mappings, []string{"anthropic"}, true, cooldown.NewManager())
	r.HandleRateLimit("openai:gpt-4", 0)

	got := r.ResolveModel("gpt-4")
	if got.Provider != "openai" || got.Model != "gpt-3.5-turbo" {
		t.Errorf("got %+v, want mapping fallback gpt-3.5-turbo", got)
	}
}

func TestHasFallbackAvailable_ProviderOrder(t *testing.T) {
	mappings := map[string]Mapping{
		"gpt-4": {Provider: "openai", Model: "gpt-4"},
	}
	r := NewRouter(mappings, []string{"anthropic"}, true, cooldown.NewManager())

	cand, ok := r.HasFallbackAvailable("gpt-4", Target{Provider: "openai", Model: "gpt-4"})
	if !ok || cand.Provider != "anthropic" || cand.Model != "gpt-4" {
		t.Errorf("got %+v ok=%v, want anthropic/gpt-4", cand, ok)
	}

	if _, ok = r.HasFallbackAvailable("gpt-4", Target{Provider: "anthropic", Model: "gpt-4"}); ok {
		t.Error("the only ordered provider is excluded, want no fallback")
	}
}

func TestRouterUpdateSwapsConfig(t *testing.T) {
	r := NewRouter(nil, nil, false, cooldown.NewManager())
	r.Update(map[string]Mapping{"alias": {Provider: "openai", Model: "gpt-4o"}}, []string{"anthropic"}, true)

	if !r.RotateOn429() {
		t.Error("RotateOn429 not updated")
	}
	if got := r.ResolveModel("alias"); got.Model != "gpt-4o" {
		t.Errorf("mapping not updated, got %+v", got)
	}
	if order := r.FallbackOrder(); len(order) != 1 || order[0] != "anthropic" {
		t.Errorf("fallback order not updated, got %v", order)
	}
}

func TestHasFallbackAvailable(t *testing.T) {
	r := scenarioRouter()
	r.HandleRateLimit("openai:gpt-3.5-turbo", 0)

	cand, ok := r.HasFallbackAvailable("gpt-4", Target{Provider: "openai", Model: "gpt-4"})
	if !ok || cand.Model != "claude-3-opus" {
		t.Errorf("got %+v ok=%v, want claude-3-opus", cand, ok)
	}

	r.HandleRateLimit("anthropic:claude-3-opus", 0)
	if _, ok = r.HasFallbackAvailable("gpt-4", Target{Provider: "openai", Model: "gpt-4"}); ok {
		t.Error("no fallback should be available")
	}
}
