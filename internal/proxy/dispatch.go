package proxy

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/routing"
)

// PassthroughProxy forwards a request to the configured upstream gateway
// when no local provider can serve it.
type PassthroughProxy interface {
	Enabled() bool
	Forward(c *gin.Context)
}

// Dispatcher turns inbound HTTP requests into retry-loop executions.
type Dispatcher struct {
	Core *Core
	// Amp is the optional passthrough fallback.
	Amp PassthroughProxy
	// ForceProvider pins the target provider for provider-scoped routes.
	ForceProvider string
}

// HandlerFor returns the gin handler for an ingress route speaking the given
// dialect. An empty dialect is detected from the path and body.
func (d *Dispatcher) HandlerFor(dialect string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Data(http.StatusBadRequest, "application/json", errorBody("failed to read request body", "invalid_request_error", ""))
			return
		}
		_ = c.Request.Body.Close()

		src := dialect
		if src == "" {
			src = DetectDialect(c.Request.URL.Path, body)
		}

		model := ModelFromPath(c.Request.URL.Path)
		if model == "" {
			model = gjson.GetBytes(body, "model").String()
		}
		if model == "" {
			c.Data(http.StatusBadRequest, "application/json", errorBody("model is required", "invalid_request_error", ""))
			return
		}

		reqID := uuid.NewString()[:8]
		res := routing.ApplyModelMapping(model, d.Core.Router.Mappings())
		if res.Model != model && gjson.GetBytes(body, "model").Exists() {
			body, _ = sjson.SetBytes(body, "model", res.Model)
		}

		forced := d.ForceProvider
		if forced == "" {
			if p := c.Param("provider"); p != "" {
				if !provider.Valid(p) {
					c.Data(http.StatusBadRequest, "application/json",
						errorBody("unknown provider "+p, "invalid_request_error", ""))
					return
				}
				forced = p
			}
		}

		target := d.Core.Router.ResolveModel(model)
		if forced != "" {
			target.Provider = forced
		}

		if d.Core.Tokens.AccountCount(target.Provider) == 0 {
			if d.Amp != nil && d.Amp.Enabled() {
				log.Debugf("req %s: no local credentials for %s, passing through", reqID, target.Provider)
				c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
				d.Amp.Forward(c)
				return
			}
			c.Data(http.StatusServiceUnavailable, "application/json",
				errorBody("no provider available for model "+model, "api_error", "no_provider"))
			return
		}

		d.Core.Execute(c.Request.Context(), c.Writer, Inbound{
			ReqID:         reqID,
			Dialect:       src,
			Model:         model,
			Body:          body,
			Stream:        IsStreamRequest(c.Request.URL.Path, body),
			ForceProvider: forced,
		})
	}
}

// DetectDialect decides the source dialect from the path, falling back to
// body shape.
func DetectDialect(path string, body []byte) string {
	switch {
	case strings.Contains(path, "/v1/messages"):
		return provider.DialectAnthropic
	case strings.Contains(path, "/v1/chat/completions"):
		return provider.DialectOpenAI
	case strings.Contains(path, "/v1/responses"):
		return provider.DialectOpenAIResponses
	case strings.Contains(path, "generateContent") || strings.Contains(path, "/v1beta/models"):
		return provider.DialectGemini
	}
	switch {
	case gjson.GetBytes(body, "contents").Exists():
		return provider.DialectGemini
	case gjson.GetBytes(body, "input").Exists() || gjson.GetBytes(body, "instructions").Exists():
		return provider.DialectOpenAIResponses
	case gjson.GetBytes(body, "max_tokens").Exists() && gjson.GetBytes(body, "system").Exists():
		return provider.DialectAnthropic
	}
	return provider.DialectOpenAI
}

// ModelFromPath extracts the model from Gemini-style "models/<name>:<action>"
// paths.
func ModelFromPath(path string) string {
	idx := strings.Index(path, "models/")
	if idx < 0 {
		return ""
	}
	rest := path[idx+len("models/"):]
	if cut := strings.IndexAny(rest, ":/"); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}

// IsStreamRequest reports whether the request wants SSE output.
func IsStreamRequest(path string, body []byte) bool {
	if strings.Contains(path, "streamGenerateContent") {
		return true
	}
	return gjson.GetBytes(body, "stream").Bool()
}
