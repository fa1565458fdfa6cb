package proxy

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/routing"
)

// Action is the retry loop's next move after an upstream error.
type Action int

const (
	// ActionRetry sleeps Delay and repeats the attempt.
	ActionRetry Action = iota
	// ActionSwitchModel moves to NewTarget and resets per-target state.
	ActionSwitchModel
	// ActionAllCooldown surrenders with the canonical 429 response.
	ActionAllCooldown
	// ActionThrow aborts with a non-retriable failure.
	ActionThrow
	// ActionRotateAccount retries on the next account index.
	ActionRotateAccount
	// ActionProjectOverride retries with the default antigravity project.
	ActionProjectOverride
	// ActionStripSignatures removes remaining thinking from the body and
	// retries.
	ActionStripSignatures
)

// Decision is the classifier's verdict for one upstream error.
type Decision struct {
	Action    Action
	Delay     time.Duration
	NewTarget routing.Target
	Message   string
}

const (
	defaultRetryAfter = 30 * time.Second
	shortRetryDelay   = time.Second
)

// errorContext is everything the classifier looks at.
type errorContext struct {
	ReqID         string
	Target        routing.Target
	OriginalModel string
	Status        int
	ErrorText     string
	Header        http.Header
	AccountIndex  int
}

// classify implements the upstream error rules: 429 drives cooldown and
// fallback, 401/403 rotate accounts, antigravity 404 toggles the project
// override, a 400 signature marker strips and retries, 5xx retries.
func (c *Core) classify(ec errorContext) Decision {
	log.WithFields(log.Fields{
		"reqId":    ec.ReqID,
		"provider": ec.Target.Provider,
		"model":    ec.Target.Model,
		"status":   ec.Status,
	}).Warnf("upstream error: %s", truncate(ec.ErrorText, 300))

	markers := c.markers()
	switch {
	case ec.Status == http.StatusTooManyRequests:
		return c.classifyRateLimit(ec)

	case ec.Status == http.StatusUnauthorized || ec.Status == http.StatusForbidden:
		if ec.AccountIndex+1 < c.Tokens.AccountCount(ec.Target.Provider) {
			return Decision{Action: ActionRotateAccount}
		}
		return Decision{Action: ActionThrow, Message: ec.ErrorText}

	case ec.Status == http.StatusNotFound && ec.Target.Provider == provider.Antigravity &&
		matchesMarker(ec.ErrorText, markers.ProjectNotFound):
		return Decision{Action: ActionProjectOverride}

	case ec.Status == http.StatusBadRequest:
		if matchesMarker(ec.ErrorText, markers.CorruptedSignature) {
			return Decision{Action: ActionStripSignatures}
		}
		return Decision{Action: ActionThrow, Message: ec.ErrorText}

	case ec.Status >= 500:
		return Decision{Action: ActionRetry, Delay: c.shortDelay()}
	}
	return Decision{Action: ActionThrow, Message: ec.ErrorText}
}

func (c *Core) classifyRateLimit(ec errorContext) Decision {
	retryAfter := parseRetryAfter(ec.Header, ec.ErrorText)

	key := provider.CooldownKey(ec.Target.Provider, ec.Target.Model)
	c.Router.HandleRateLimit(key, retryAfter)
	c.Accounts.MarkRateLimited(ec.Target.Provider, ec.AccountIndex, retryAfter)

	if c.Router.RotateOn429() {
		if next, ok := c.Router.HasFallbackAvailable(ec.OriginalModel, ec.Target); ok {
			return Decision{Action: ActionSwitchModel, NewTarget: next}
		}
	}
	if c.Accounts.AllRateLimited(ec.Target.Provider, c.Tokens.AccountCount(ec.Target.Provider)) {
		return Decision{Action: ActionAllCooldown}
	}
	return Decision{Action: ActionRetry, Delay: c.shortDelay()}
}

func (c *Core) shortDelay() time.Duration {
	if c.ShortRetryDelay > 0 {
		return c.ShortRetryDelay
	}
	return shortRetryDelay
}

// parseRetryAfter reads the Retry-After header or a retry hint embedded in
// the error body, defaulting to 30 s.
func parseRetryAfter(header http.Header, errorText string) time.Duration {
	if header != nil {
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
			if t, err := http.ParseTime(v); err == nil {
				if d := time.Until(t); d > 0 {
					return d
				}
			}
		}
	}
	if gjson.Valid(errorText) {
		for _, path := range []string{"error.retryDelay", "error.retry_after", "error.details.#.retryDelay|0"} {
			if v := gjson.Get(errorText, path); v.Exists() {
				if d := parseDelayValue(v); d > 0 {
					return d
				}
			}
		}
	}
	return defaultRetryAfter
}

func parseDelayValue(v gjson.Result) time.Duration {
	if v.Type == gjson.Number {
		return time.Duration(v.Float() * float64(time.Second))
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}

func matchesMarker(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
