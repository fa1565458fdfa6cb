package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/llmux/llmux/internal/account"
	"github.com/llmux/llmux/internal/config"
	"github.com/llmux/llmux/internal/cooldown"
	"github.com/llmux/llmux/internal/proxy"
	"github.com/llmux/llmux/internal/routing"
	"github.com/llmux/llmux/internal/tokens"
	"github.com/llmux/llmux/internal/upstream"
)

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.Server.Port = config.DefaultPort
	cfg.Server.Hostname = "localhost"

	tk := tokens.NewManager()
	tk.RegisterKey("openai", "test", "sk-test")
	core := &proxy.Core{
		Router:          routing.NewRouter(cfg.Routing.ModelMapping, cfg.Routing.FallbackOrder, true, cooldown.NewManager()),
		Accounts:        account.NewManager(),
		Tokens:          tk,
		ServerSessionID: "test-session",
	}
	return NewServer(cfg, core, upstream.New(cfg.Amp))
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
}

func TestProvidersEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/providers", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	providers := gjson.Get(rec.Body.String(), "providers").Array()
	require.NotEmpty(t, providers)
	byName := make(map[string]gjson.Result)
	for _, p := range providers {
		byName[p.Get("name").String()] = p
	}
	assert.Equal(t, int64(1), byName["openai"].Get("accounts").Int())
	assert.Equal(t, "gemini", byName["antigravity"].Get("dialect").String())
}

func TestStatusEndpointShowsCooldowns(t *testing.T) {
	s := newTestServer(t, nil)
	s.dispatcher.Core.Router.HandleRateLimit("openai:gpt-4o", 0)

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "test-session", gjson.Get(body, "sessionId").String())
	assert.Equal(t, "openai:gpt-4o", gjson.Get(body, "cooldowns.0.key").String())
}

func TestModelsEndpointScopedByProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Routing.ModelMapping = map[string]routing.Mapping{
		"gpt-4":         {Provider: "openai", Model: "gpt-4"},
		"claude-3-opus": {Provider: "anthropic", Model: "claude-3-opus"},
	}
	s := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gjson.Get(rec.Body.String(), "data").Array(), 2)

	rec = httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/provider/openai/v1/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := gjson.Get(rec.Body.String(), "data").Array()
	require.Len(t, data, 1)
	assert.Equal(t, "gpt-4", data[0].Get("id").String())
}

func TestIngressRouteReachesDispatcher(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"messages":[]}`))
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "model is required")
}

func TestManagementWithoutAmpReturns503(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCorsPreflight(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Cors = true
	s := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://app.test")
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
