package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/llmux/llmux/internal/logging"
	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/routing"
	"github.com/llmux/llmux/internal/signature"
	"github.com/llmux/llmux/internal/stream"
	"github.com/llmux/llmux/internal/thinking"
	"github.com/llmux/llmux/internal/tokens"
	"github.com/llmux/llmux/internal/translator"
)

const (
	endpointRotateDelay = 200 * time.Millisecond
	networkRetryDelay   = time.Second
	maxErrorBodyBytes   = 64 << 10
)

// attempt is everything resolved for one upstream fetch.
type attempt struct {
	target    routing.Target
	endpoint  string
	headers   map[string]string
	body      []byte
	projectID string
	account   tokens.Auth
}

// Execute runs the retry loop for one request and writes the outcome to w.
// It owns the response; callers must not touch w afterwards.
func (c *Core) Execute(ctx context.Context, w http.ResponseWriter, in Inbound) {
	target := c.Router.ResolveModel(in.Model)
	if in.ForceProvider != "" {
		target.Provider = in.ForceProvider
	}
	state := &RetryState{
		AccountIndex: c.Accounts.NextAvailable(target.Provider, c.Tokens.AccountCount(target.Provider)),
	}
	body := in.Body

	for {
		state.Attempt++
		if state.Attempt > MaxAttempts {
			writeJSONError(w, http.StatusInternalServerError, errorBody("Unexpected end of retry loop", "api_error", ""))
			return
		}
		if ctx.Err() != nil {
			return
		}

		att, err := c.prepare(ctx, target, state, in.Dialect, body, in.Stream)
		if err != nil {
			msg, status := err.Error(), http.StatusInternalServerError
			var se *statusErr
			if errors.As(err, &se) {
				msg, status = se.msg, se.code
			}
			writeJSONError(w, status, errorBody(msg, "api_error", ""))
			return
		}

		start := time.Now()
		attemptCtx, cancelAttempt := c.attemptContext(ctx, in.Stream)
		resp, err := c.send(attemptCtx, att, in.Stream)
		if err != nil {
			cancelAttempt()
			if ctx.Err() != nil {
				return
			}
			log.WithFields(log.Fields{
				"reqId":    in.ReqID,
				"provider": target.Provider,
				"model":    target.Model,
			}).Warnf("network error: %v", err)
			if !c.backoffNetwork(ctx, target.Provider, state) {
				return
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.Router.HandleSuccess(target.Provider, target.Model)
			if in.Stream {
				c.logPayload(in, att, state.Attempt, resp.StatusCode, nil, true)
			}
			c.relay(ctx, w, resp, in, att, start, state.Attempt)
			cancelAttempt()
			return
		}

		errText := readErrorBody(resp)
		cancelAttempt()
		c.logPayload(in, att, state.Attempt, resp.StatusCode, []byte(errText), false)
		dec := c.classify(errorContext{
			ReqID:         in.ReqID,
			Target:        target,
			OriginalModel: in.Model,
			Status:        resp.StatusCode,
			ErrorText:     errText,
			Header:        resp.Header,
			AccountIndex:  state.AccountIndex,
		})

		switch dec.Action {
		case ActionRetry:
			if !sleepCtx(ctx, dec.Delay) {
				return
			}
		case ActionRotateAccount:
			state.AccountIndex++
		case ActionProjectOverride:
			state.OverrideProjectID = provider.DefaultAntigravityProject
		case ActionStripSignatures:
			body = signature.StripAllSignatures(body)
		case ActionSwitchModel:
			log.Infof("req %s: switching %s:%s -> %s:%s", in.ReqID,
				target.Provider, target.Model, dec.NewTarget.Provider, dec.NewTarget.Model)
			target = dec.NewTarget
			state.Attempt = 0
			state.AccountIndex = c.Accounts.NextAvailable(target.Provider, c.Tokens.AccountCount(target.Provider))
			state.EndpointIndex = 0
			state.OverrideProjectID = ""
		case ActionAllCooldown:
			writeJSONError(w, http.StatusTooManyRequests, allCooldownBody())
			return
		case ActionThrow:
			writeJSONError(w, http.StatusInternalServerError, errorBody(dec.Message, "api_error", ""))
			return
		}
	}
}

// prepare resolves credentials, rewrites the body for the target dialect,
// applies provider fixups and the thinking engine, and picks the endpoint.
func (c *Core) prepare(ctx context.Context, target routing.Target, state *RetryState, srcDialect string, body []byte, streaming bool) (attempt, error) {
	auth, err := c.Tokens.EnsureFresh(ctx, target.Provider, state.AccountIndex)
	if err != nil {
		return attempt{}, newStatusErr(http.StatusServiceUnavailable, "credential refresh failed: %v", err)
	}

	att := attempt{target: target, account: auth, headers: map[string]string{
		"Content-Type": "application/json",
	}}

	var ag provider.AntigravityRequest
	if target.Provider == provider.Antigravity {
		ag = provider.PrepareAntigravityRequest(target.Model, state.EndpointIndex, state.OverrideProjectID, streaming)
		att.projectID = ag.ProjectID
	}

	if att.projectID != "" && c.SigStore != nil {
		var stripped int
		body, stripped = signature.ValidateAndStrip(body, att.projectID, c.SigStore)
		if stripped > 0 {
			log.Debugf("stripped %d foreign signatures for project %s", stripped, att.projectID)
		}
	}

	out := translator.TranslateRequest(srcDialect, provider.Dialect(target.Provider), target.Model, body, streaming)

	if state.prevModel != "" && (state.prevModel != target.Model || state.prevProvider != target.Provider) {
		out = signature.StripAllSignatures(out)
	}
	state.prevModel = target.Model
	state.prevProvider = target.Provider

	if c.Thinking != nil && thinking.ShouldCacheSignatures(target.Model) {
		out = c.Thinking.Process(out, target.Model, c.sessionKey(target.Model, att.projectID, body))
	}

	switch target.Provider {
	case provider.OpencodeZen:
		out = provider.FixupOpencodeZen(out, target.Model, target.Thinking)
		att.headers["Authorization"] = "Bearer " + auth.Token
		att.endpoint = provider.OpencodeZenEndpoint(target.Model)
	case provider.Antigravity:
		out = provider.WrapAntigravityBody(out, ag.ProjectID, target.Model)
		for k, v := range ag.Headers {
			att.headers[k] = v
		}
		att.headers["Authorization"] = "Bearer " + auth.Token
		att.endpoint = ag.Endpoint
	case provider.OpenAIWeb:
		out = provider.BuildCodexBody(out, target.Model)
		ow := provider.PrepareOpenAIWebRequest(auth.AccountID)
		for k, v := range ow.Headers {
			att.headers[k] = v
		}
		att.headers["Authorization"] = "Bearer " + auth.Token
		att.endpoint = ow.Endpoint
	case provider.Anthropic:
		att.headers["x-api-key"] = auth.Token
		att.headers["anthropic-version"] = "2023-06-01"
		att.endpoint = provider.DefaultEndpoint(target.Provider, target.Model, streaming)
	case provider.Gemini:
		att.headers["x-goog-api-key"] = auth.Token
		att.endpoint = provider.DefaultEndpoint(target.Provider, target.Model, streaming)
	default:
		att.headers["Authorization"] = "Bearer " + auth.Token
		att.endpoint = provider.DefaultEndpoint(target.Provider, target.Model, streaming)
	}

	if c.EndpointOverride != nil {
		att.endpoint = c.EndpointOverride(target.Provider, target.Model, streaming)
	}
	att.body = out
	return att, nil
}

// attemptContext derives the per-attempt context. The returned cancel must be
// called only after the response body has been fully consumed; the request
// and its body reads are both bound to this context.
func (c *Core) attemptContext(ctx context.Context, streaming bool) (context.Context, context.CancelFunc) {
	if c.AttemptTimeout > 0 && !streaming {
		return context.WithTimeout(ctx, c.AttemptTimeout)
	}
	return ctx, func() {}
}

func (c *Core) send(ctx context.Context, att attempt, streaming bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, att.endpoint, bytes.NewReader(att.body))
	if err != nil {
		return nil, err
	}
	for k, v := range att.headers {
		req.Header.Set(k, v)
	}
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
	}
	return c.httpClient().Do(req)
}

// relay pipes a 2xx upstream response to the client, transforming dialects
// on the way through.
func (c *Core) relay(ctx context.Context, w http.ResponseWriter, resp *http.Response, in Inbound, att attempt, start time.Time, attemptNo int) {
	defer func() { _ = resp.Body.Close() }()

	srcDialect := provider.Dialect(att.target.Provider)
	if in.Stream {
		c.relayStream(ctx, w, resp.Body, in, att, srcDialect)
	} else {
		c.relayUnary(w, resp.Body, in, att, srcDialect, attemptNo)
	}

	log.WithFields(log.Fields{
		"reqId":    in.ReqID,
		"provider": att.target.Provider,
		"model":    att.target.Model,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Truncate(time.Millisecond).String(),
	}).Info("request served")
}

func (c *Core) relayStream(ctx context.Context, w http.ResponseWriter, upstream io.Reader, in Inbound, att attempt, srcDialect string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	tr := stream.NewTransformer(stream.Options{
		Source:     srcDialect,
		Target:     in.Dialect,
		Upstream:   att.target.Provider,
		Model:      att.target.Model,
		SessionKey: c.sessionKey(att.target.Model, att.projectID, in.Body),
		Cacher:     c.Thinking,
		Saver:      saverOrNil(c.SigStore),
		SigContext: &stream.SignatureContext{
			ProjectID: att.projectID,
			Endpoint:  att.endpoint,
			Account:   att.account.AccountID,
		},
	})

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := upstream.Read(buf)
		if n > 0 {
			if out := tr.Feed(buf[:n]); len(out) > 0 {
				if _, werr := w.Write(out); werr != nil {
					log.Debugf("req %s: client write failed: %v", in.ReqID, werr)
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warnf("req %s: upstream read: %v", in.ReqID, err)
			}
			break
		}
	}
	if out := tr.Flush(); len(out) > 0 {
		_, _ = w.Write(out)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (c *Core) relayUnary(w http.ResponseWriter, upstream io.Reader, in Inbound, att attempt, srcDialect string, attemptNo int) {
	data, err := io.ReadAll(upstream)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, errorBody("upstream read failed", "api_error", ""))
		return
	}
	c.logPayload(in, att, attemptNo, http.StatusOK, data, false)
	if att.target.Provider == provider.Antigravity {
		data = unwrapAntigravityResponse(data)
	}
	out := translator.TranslateResponse(srcDialect, in.Dialect, att.target.Model, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// backoffNetwork applies the network-failure pacing: antigravity rotates
// through its endpoint variants quickly, everything else waits a second.
func (c *Core) backoffNetwork(ctx context.Context, providerName string, state *RetryState) bool {
	if providerName == provider.Antigravity {
		state.EndpointIndex++
		if state.EndpointIndex < provider.AntigravityEndpointCount() {
			return sleepCtx(ctx, endpointRotateDelay)
		}
		state.EndpointIndex = 0
		return sleepCtx(ctx, networkRetryDelay)
	}
	return sleepCtx(ctx, networkRetryDelay)
}

// logPayload hands the finished exchange to the payload logger when capture
// is enabled.
func (c *Core) logPayload(in Inbound, att attempt, attemptNo, status int, response []byte, streaming bool) {
	if c.Payloads == nil || !c.Payloads.Enabled() {
		return
	}
	c.Payloads.Record(logging.PayloadEntry{
		ReqID:     in.ReqID,
		Attempt:   attemptNo,
		Provider:  att.target.Provider,
		Model:     att.target.Model,
		Endpoint:  att.endpoint,
		Status:    status,
		Streaming: streaming,
		Request:   att.body,
		Response:  response,
	})
}

func (c *Core) sessionKey(model, projectID string, body []byte) string {
	convKey := thinking.ExtractConversationKey(body)
	return thinking.BuildSessionKey(c.ServerSessionID, model, convKey, projectID)
}

func readErrorBody(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return string(data)
}

func writeJSONError(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// unwrapAntigravityResponse peels the {response:{...}} envelope off unary
// antigravity replies.
func unwrapAntigravityResponse(data []byte) []byte {
	if inner := gjson.GetBytes(data, "response"); inner.Exists() && inner.IsObject() {
		return []byte(inner.Raw)
	}
	return data
}

func saverOrNil(s *signature.Store) signature.Saver {
	if s == nil {
		return nil
	}
	return s
}
