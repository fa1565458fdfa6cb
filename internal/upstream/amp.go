// Package upstream forwards requests to the configured passthrough gateway
// when no local provider credentials can serve them, and proxies the
// gateway's management surface.
package upstream

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/config"
)

// hopHeaders are stripped when proxying.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Amp proxies to the upstream gateway configured under the amp section.
type Amp struct {
	cfg    config.AmpConfig
	client *http.Client
}

// New builds the passthrough proxy. A nil-safe zero value is returned for a
// disabled configuration.
func New(cfg config.AmpConfig) *Amp {
	return &Amp{
		cfg: cfg,
		client: &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
	}
}

// Enabled reports whether passthrough is configured and usable.
func (a *Amp) Enabled() bool {
	return a != nil && a.cfg.Enabled && a.cfg.UpstreamURL != ""
}

// Forward sends an ingress request upstream, applying the configured model
// mappings on the way.
func (a *Amp) Forward(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	_ = c.Request.Body.Close()

	if model := gjson.GetBytes(body, "model").String(); model != "" {
		if mapped, ok := a.cfg.ModelMappings[model]; ok && mapped != "" {
			body, _ = sjson.SetBytes(body, "model", mapped)
		}
	}
	a.proxy(c, body)
}

// Management handles the gateway's non-inference surface. HTML navigations
// are redirected upstream instead of proxied.
func (a *Amp) Management() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream passthrough not configured"})
			return
		}
		if a.cfg.RestrictManagementToLocalhost && !isLocalhost(c.Request.RemoteAddr) {
			c.JSON(http.StatusForbidden, gin.H{"error": "management endpoints are restricted to localhost"})
			return
		}
		if acceptsHTML(c.Request.Header.Get("Accept")) {
			c.Redirect(http.StatusTemporaryRedirect, a.cfg.UpstreamURL+c.Request.URL.RequestURI())
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			_ = c.Request.Body.Close()
		}
		a.proxy(c, body)
	}
}

func (a *Amp) proxy(c *gin.Context, body []byte) {
	url := a.cfg.UpstreamURL + c.Request.URL.RequestURI()
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, strings.NewReader(string(body)))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to build upstream request"})
		return
	}

	for k, vals := range c.Request.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Header.Del("Host")
	if a.cfg.UpstreamAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.UpstreamAPIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("amp: upstream request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unreachable"})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	header := c.Writer.Header()
	for k, vals := range resp.Header {
		for _, v := range vals {
			header.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
	c.Status(resp.StatusCode)

	flusher, _ := c.Writer.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			return
		}
	}
}

func acceptsHTML(accept string) bool {
	return strings.Contains(accept, "text/html")
}

func isLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}
