package proxy

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// allCooldownMessage is the canonical client-facing text when every model
// and provider is rate-limited.
const allCooldownMessage = "All available models and providers are currently rate-limited. Please try again later."

// statusErr carries an HTTP status alongside the message so handlers can
// map internal failures onto wire responses.
type statusErr struct {
	code int
	msg  string
}

func (e *statusErr) Error() string { return fmt.Sprintf("status %d: %s", e.code, e.msg) }

func newStatusErr(code int, format string, args ...any) *statusErr {
	return &statusErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// errorBody renders the curated {error:{message,type,code?}} JSON shape.
func errorBody(message, errType, errCode string) []byte {
	body := []byte(`{"error":{}}`)
	body, _ = sjson.SetBytes(body, "error.message", message)
	body, _ = sjson.SetBytes(body, "error.type", errType)
	if errCode != "" {
		body, _ = sjson.SetBytes(body, "error.code", errCode)
	}
	return body
}

func allCooldownBody() []byte {
	return errorBody(allCooldownMessage, "rate_limit_error", "all_providers_cooldown")
}
