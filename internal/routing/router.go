package routing

import (
	"strings"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/llmux/llmux/internal/cooldown"
	"github.com/llmux/llmux/internal/provider"
)

// Target is a concrete (provider, model) pair chosen for an attempt.
type Target struct {
	Provider string
	Model    string
	Thinking bool
}

// routeConfig is one immutable snapshot of the routing configuration. Hot
// reload swaps the whole snapshot, so request goroutines never observe a
// half-applied update.
type routeConfig struct {
	mappings      map[string]Mapping
	fallbackOrder []string
	rotateOn429   bool
}

// Router resolves requested models to dispatch targets, consulting the
// cooldown manager to skip rate-limited candidates.
type Router struct {
	cfg       atomic.Pointer[routeConfig]
	cooldowns *cooldown.Manager
}

// NewRouter wires a router to its cooldown manager.
func NewRouter(mappings map[string]Mapping, fallbackOrder []string, rotateOn429 bool, cd *cooldown.Manager) *Router {
	r := &Router{cooldowns: cd}
	r.Update(mappings, fallbackOrder, rotateOn429)
	return r
}

// Update swaps in a new configuration snapshot. Callers must not mutate the
// passed map or slice afterwards.
func (r *Router) Update(mappings map[string]Mapping, fallbackOrder []string, rotateOn429 bool) {
	r.cfg.Store(&routeConfig{
		mappings:      mappings,
		fallbackOrder: fallbackOrder,
		rotateOn429:   rotateOn429,
	})
}

// Mappings returns the current model mapping table.
func (r *Router) Mappings() map[string]Mapping { return r.cfg.Load().mappings }

// FallbackOrder returns the configured provider preference list.
func (r *Router) FallbackOrder() []string { return r.cfg.Load().fallbackOrder }

// RotateOn429 reports whether a 429 may switch the request to a fallback.
func (r *Router) RotateOn429() bool { return r.cfg.Load().rotateOn429 }

// ResolveModel picks the target for requestedModel. The primary target wins
// when its cooldown key is clear; otherwise the mapping's fallbacks are
// walked in order, then the provider fallback order with the mapped model.
// When everything is cooling down the primary is returned and the retry loop
// surfaces the all-cooldown condition.
func (r *Router) ResolveModel(requestedModel string) Target {
	cfg := r.cfg.Load()
	res := ApplyModelMapping(requestedModel, cfg.mappings)
	primary := r.toTarget(res)

	if r.cooldowns == nil || r.cooldowns.IsAvailable(provider.CooldownKey(primary.Provider, primary.Model)) {
		return primary
	}

	for _, fb := range res.Fallbacks {
		cand := r.toTarget(ApplyModelMapping(fb, cfg.mappings))
		cand.Thinking = primary.Thinking
		if r.cooldowns.IsAvailable(provider.CooldownKey(cand.Provider, cand.Model)) {
			log.Debugf("router: %s cooling down, falling back to %s:%s", requestedModel, cand.Provider, cand.Model)
			return cand
		}
	}

	if cand, ok := r.providerFallback(cfg, primary, Target{}); ok {
		log.Debugf("router: %s cooling down, provider order picks %s:%s", requestedModel, cand.Provider, cand.Model)
		return cand
	}
	return primary
}

// HasFallbackAvailable reports whether any fallback of requestedModel has a
// clear cooldown key, excluding the given target. The mapping's own
// fallbacks are preferred over the provider fallback order.
func (r *Router) HasFallbackAvailable(requestedModel string, exclude Target) (Target, bool) {
	cfg := r.cfg.Load()
	res := ApplyModelMapping(requestedModel, cfg.mappings)
	for _, fb := range res.Fallbacks {
		cand := r.toTarget(ApplyModelMapping(fb, cfg.mappings))
		if cand.Provider == exclude.Provider && cand.Model == exclude.Model {
			continue
		}
		if r.cooldowns.IsAvailable(provider.CooldownKey(cand.Provider, cand.Model)) {
			return cand, true
		}
	}
	return r.providerFallback(cfg, r.toTarget(res), exclude)
}

// providerFallback walks the configured provider preference list, keeping the
// mapped model and swapping the provider.
func (r *Router) providerFallback(cfg *routeConfig, primary, exclude Target) (Target, bool) {
	for _, p := range cfg.fallbackOrder {
		if p == primary.Provider || !provider.Valid(p) {
			continue
		}
		cand := Target{Provider: p, Model: primary.Model, Thinking: primary.Thinking}
		if cand.Provider == exclude.Provider && cand.Model == exclude.Model {
			continue
		}
		if r.cooldowns.IsAvailable(provider.CooldownKey(cand.Provider, cand.Model)) {
			return cand, true
		}
	}
	return Target{}, false
}

// toTarget fills in the provider for a mapping result, inferring it from the
// model name (or an explicit "model:provider" suffix) when unmapped.
func (r *Router) toTarget(res Resolved) Target {
	model := res.Model
	prov := res.Provider
	if prov == "" {
		model, prov = parseInlineProvider(model)
	}
	if prov == "" {
		prov = provider.InferFromModel(model)
	}
	return Target{Provider: prov, Model: model, Thinking: res.Thinking}
}

// HandleRateLimit records a rate limit on a cooldown key with an optional
// upstream-provided retry-after duration.
func (r *Router) HandleRateLimit(key string, retryAfter time.Duration) time.Duration {
	d := r.cooldowns.MarkRateLimited(key, retryAfter)
	log.Warnf("router: cooldown %s for %s", key, d)
	return d
}

// HandleSuccess clears the cooldown entry for a target after a 2xx response.
func (r *Router) HandleSuccess(providerName, model string) {
	r.cooldowns.Reset(provider.CooldownKey(providerName, model))
}

// Cooldowns exposes the underlying manager for observability endpoints.
func (r *Router) Cooldowns() *cooldown.Manager { return r.cooldowns }

// parseInlineProvider splits an unmapped "model:provider" name. Invalid
// provider suffixes leave the name untouched.
func parseInlineProvider(model string) (string, string) {
	if idx := strings.LastIndex(model, ":"); idx > 0 {
		if suffix := model[idx+1:]; provider.Valid(suffix) {
			return model[:idx], suffix
		}
	}
	return model, ""
}
