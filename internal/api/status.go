package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llmux/llmux/internal/provider"
)

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// providersHandler lists the known providers with their account and cooldown
// state.
func (s *Server) providersHandler(c *gin.Context) {
	core := s.dispatcher.Core

	type providerInfo struct {
		Name     string `json:"name"`
		Dialect  string `json:"dialect"`
		Accounts int    `json:"accounts"`
	}
	var out []providerInfo
	for _, name := range provider.All() {
		out = append(out, providerInfo{
			Name:     name,
			Dialect:  provider.Dialect(name),
			Accounts: core.Tokens.AccountCount(name),
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// statusHandler reports active cooldowns and routing configuration.
func (s *Server) statusHandler(c *gin.Context) {
	core := s.dispatcher.Core

	type cooldownInfo struct {
		Key      string `json:"key"`
		ResetAt  string `json:"resetAt"`
		ResetsIn string `json:"resetsIn"`
	}
	var cooldowns []cooldownInfo
	for _, e := range core.Router.Cooldowns().Snapshot() {
		cooldowns = append(cooldowns, cooldownInfo{
			Key:      e.Key,
			ResetAt:  e.ResetAt.Format(time.RFC3339),
			ResetsIn: time.Until(e.ResetAt).Truncate(time.Second).String(),
		})
	}
	sort.Slice(cooldowns, func(i, j int) bool { return cooldowns[i].Key < cooldowns[j].Key })

	c.JSON(http.StatusOK, gin.H{
		"sessionId":     core.ServerSessionID,
		"cooldowns":     cooldowns,
		"fallbackOrder": core.Router.FallbackOrder(),
		"rotateOn429":   core.Router.RotateOn429(),
		"ampEnabled":    s.amp.Enabled(),
	})
}

// modelsHandler lists the mapped model names in the OpenAI models format.
func (s *Server) modelsHandler(c *gin.Context) {
	core := s.dispatcher.Core
	scope := c.Param("provider")

	type modelInfo struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	seen := make(map[string]bool)
	var models []modelInfo
	for name := range core.Router.Mappings() {
		target := core.Router.ResolveModel(name)
		if scope != "" && target.Provider != scope {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		models = append(models, modelInfo{ID: name, Object: "model", OwnedBy: target.Provider})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	c.JSON(http.StatusOK, gin.H{"object": "list", "data": models})
}
