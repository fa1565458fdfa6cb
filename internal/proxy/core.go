// Package proxy contains the dispatch engine: the per-request retry loop,
// upstream error classification, and the HTTP handler that feeds them.
package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/llmux/llmux/internal/account"
	"github.com/llmux/llmux/internal/config"
	"github.com/llmux/llmux/internal/logging"
	"github.com/llmux/llmux/internal/routing"
	"github.com/llmux/llmux/internal/signature"
	"github.com/llmux/llmux/internal/thinking"
	"github.com/llmux/llmux/internal/tokens"
)

// MaxAttempts bounds the retry loop per target.
const MaxAttempts = 8

// Core bundles the shared collaborators every request handler needs.
type Core struct {
	Router   *routing.Router
	Accounts *account.Manager
	Tokens   *tokens.Manager
	Thinking *thinking.Engine
	SigStore *signature.Store
	// Markers is the startup marker set. Hot reload writes through
	// SetMarkers; the classifier reads through markers().
	Markers   config.ErrorMarkers
	markersMu sync.RWMutex
	// Payloads, when set, captures upstream exchanges for debugging.
	Payloads logging.PayloadLogger

	Client *http.Client
	// AttemptTimeout bounds a single upstream fetch. Zero disables it.
	AttemptTimeout time.Duration
	// ShortRetryDelay paces same-target retries. Zero means one second.
	ShortRetryDelay time.Duration
	// ServerSessionID namespaces signature session keys for this process.
	ServerSessionID string

	// EndpointOverride, when set, replaces upstream endpoint resolution.
	// Used by tests to point attempts at local servers.
	EndpointOverride func(providerName, model string, streaming bool) string
}

// RetryState is the per-request mutable loop state.
type RetryState struct {
	Attempt           int
	AccountIndex      int
	EndpointIndex     int
	OverrideProjectID string

	prevModel    string
	prevProvider string
}

// Inbound is one dispatched request, body already buffered.
type Inbound struct {
	ReqID   string
	Dialect string
	// Model is the client-requested model name before mapping.
	Model  string
	Body   []byte
	Stream bool
	// ForceProvider pins the target provider for provider-scoped routes.
	ForceProvider string
}

// SetMarkers swaps the error-marker configuration on hot reload.
func (c *Core) SetMarkers(m config.ErrorMarkers) {
	c.markersMu.Lock()
	c.Markers = m
	c.markersMu.Unlock()
}

func (c *Core) markers() config.ErrorMarkers {
	c.markersMu.RLock()
	defer c.markersMu.RUnlock()
	return c.Markers
}

func (c *Core) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// sleepCtx waits d unless the request is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
