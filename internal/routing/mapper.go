// Package routing resolves which provider and model serve a request. The
// mapper rewrites client model names per configuration; the router layers
// cooldown-aware fallback selection on top.
package routing

import (
	"strings"

	"github.com/llmux/llmux/internal/provider"
)

// Mapping is one configured model alias. Either the To form ("model",
// "model:provider", "thinking:model", or a list whose tail becomes fallbacks)
// or the explicit Provider/Model/Fallbacks form may be used.
type Mapping struct {
	To        []string `json:"to" mapstructure:"to"`
	Provider  string   `json:"provider" mapstructure:"provider"`
	Model     string   `json:"model" mapstructure:"model"`
	Fallbacks []string `json:"fallbacks" mapstructure:"fallbacks"`
}

// Resolved is the outcome of applying a mapping to a requested model.
type Resolved struct {
	Model     string
	Provider  string
	Thinking  bool
	Fallbacks []string
}

// ApplyModelMapping resolves the requested model name against the configured
// mappings. Matching is case-insensitive on trimmed names; an exact match
// beats a substring match, and among substring matches the longest pattern
// wins.
func ApplyModelMapping(original string, mappings map[string]Mapping) Resolved {
	name := strings.ToLower(strings.TrimSpace(original))

	var (
		found    *Mapping
		foundKey string
		exact    bool
	)
	for key, m := range mappings {
		pattern := strings.ToLower(strings.TrimSpace(key))
		if pattern == "" {
			continue
		}
		m := m
		switch {
		case pattern == name:
			found, foundKey, exact = &m, key, true
		case !exact && strings.Contains(name, pattern):
			if found == nil || len(pattern) > len(strings.TrimSpace(foundKey)) {
				found, foundKey = &m, key
			}
		}
		if exact {
			break
		}
	}

	if found == nil {
		return Resolved{Model: strings.TrimSpace(original)}
	}
	return resolveMapping(strings.TrimSpace(original), *found)
}

func resolveMapping(original string, m Mapping) Resolved {
	res := Resolved{Model: original, Provider: m.Provider, Fallbacks: append([]string(nil), m.Fallbacks...)}

	if m.Model != "" {
		res.Model = m.Model
	}

	targets := m.To
	if len(targets) > 0 {
		res.Model, res.Provider, res.Thinking = parseTarget(targets[0])
		if res.Provider == "" {
			res.Provider = m.Provider
		}
		res.Fallbacks = append(res.Fallbacks, targets[1:]...)
	}
	return res
}

// parseTarget splits a target-model string into model, optional provider
// suffix, and the thinking flag. A "thinking:" prefix enables thinking and
// the remainder is parsed as the real target. The ":provider" suffix is only
// honored for exact, case-sensitive provider names.
func parseTarget(target string) (model, providerName string, thinking bool) {
	target = strings.TrimSpace(target)
	if rest, ok := strings.CutPrefix(target, "thinking:"); ok {
		thinking = true
		target = strings.TrimSpace(rest)
	}
	model = target
	if idx := strings.LastIndex(target, ":"); idx > 0 {
		if suffix := target[idx+1:]; provider.Valid(suffix) {
			model = target[:idx]
			providerName = suffix
		}
	}
	return model, providerName, thinking
}
