package upstream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/llmux/llmux/internal/config"
)

func TestEnabled(t *testing.T) {
	assert.False(t, New(config.AmpConfig{}).Enabled())
	assert.False(t, New(config.AmpConfig{Enabled: true}).Enabled())
	assert.True(t, New(config.AmpConfig{Enabled: true, UpstreamURL: "https://amp.test"}).Enabled())
	var nilAmp *Amp
	assert.False(t, nilAmp.Enabled())
}

func TestForwardRewritesModelAndSetsKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var gotBody []byte
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	amp := New(config.AmpConfig{
		Enabled:        true,
		UpstreamURL:    srv.URL,
		UpstreamAPIKey: "amp-key",
		ModelMappings:  map[string]string{"gpt-4o": "amp-gpt-4o"},
	})

	r := gin.New()
	r.POST("/v1/chat/completions", amp.Forward)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"gpt-4o"}`))
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "amp-gpt-4o", gjson.GetBytes(gotBody, "model").String())
	assert.Equal(t, "Bearer amp-key", gotAuth)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestManagementRedirectsHTML(t *testing.T) {
	gin.SetMode(gin.TestMode)
	amp := New(config.AmpConfig{Enabled: true, UpstreamURL: "https://amp.test"})

	r := gin.New()
	r.GET("/threads", amp.Management())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://amp.test/threads", rec.Header().Get("Location"))
}

func TestManagementLocalhostRestriction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	amp := New(config.AmpConfig{
		Enabled:                       true,
		UpstreamURL:                   "https://amp.test",
		RestrictManagementToLocalhost: true,
	})

	r := gin.New()
	r.GET("/api/user", amp.Management())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.RemoteAddr = "203.0.113.9:4312"
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestManagementProxiesJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user?full=1", r.URL.RequestURI())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"user":"u"}`))
	}))
	defer srv.Close()

	amp := New(config.AmpConfig{Enabled: true, UpstreamURL: srv.URL})
	r := gin.New()
	r.GET("/api/user", amp.Management())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user?full=1", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":"u"}`, rec.Body.String())
}
