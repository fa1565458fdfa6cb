package provider

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultAntigravityProject is used when an upstream 404 indicates the
// request's project no longer exists and the retry loop toggles the override.
const DefaultAntigravityProject = "antigravity-default"

// antigravityEndpoints is the ordered endpoint fallback list. The retry loop
// advances through it on network-level failures.
var antigravityEndpoints = []string{
	"https://cloudcode-pa.googleapis.com",
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
	"https://autopush-cloudcode-pa.sandbox.googleapis.com",
}

// AntigravityEndpointCount reports how many endpoint variants exist.
func AntigravityEndpointCount() int { return len(antigravityEndpoints) }

// AntigravityEndpoint resolves the endpoint for the given rotation index and
// appends the streaming or unary action path.
func AntigravityEndpoint(index int, streaming bool) string {
	if index < 0 || index >= len(antigravityEndpoints) {
		index = len(antigravityEndpoints) - 1
	}
	action := "generateContent"
	if streaming {
		action = "streamGenerateContent?alt=sse"
	}
	return fmt.Sprintf("%s/v1internal:%s", antigravityEndpoints[index], action)
}

// AntigravityRequest is the prepared per-attempt context for the antigravity
// upstream: the tenant project the signatures are scoped to, plus headers.
type AntigravityRequest struct {
	ProjectID string
	Endpoint  string
	Headers   map[string]string
}

// PrepareAntigravityRequest resolves project, endpoint and headers for one
// attempt. overrideProject is set by the retry loop after a project-not-found
// response.
func PrepareAntigravityRequest(model string, endpointIndex int, overrideProject string, streaming bool) AntigravityRequest {
	project := overrideProject
	if project == "" {
		project = DefaultAntigravityProject
	}
	return AntigravityRequest{
		ProjectID: project,
		Endpoint:  AntigravityEndpoint(endpointIndex, streaming),
		Headers: map[string]string{
			"User-Agent":        "antigravity/1.4.3",
			"X-Goog-Api-Client": "gl-node/22.17.0",
			"Client-Metadata":   "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=ANTIGRAVITY",
		},
	}
}

// WrapAntigravityBody wraps a Gemini-dialect body into the antigravity outer
// envelope {project, model, request, requestId}. The inner request keeps the
// contents/tools/generationConfig fields as-is.
func WrapAntigravityBody(body []byte, project, model string) []byte {
	inner := body
	// Already wrapped bodies pass through with refreshed identity fields.
	if gjson.GetBytes(body, "request").Exists() {
		inner = []byte(gjson.GetBytes(body, "request").Raw)
	}

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "project", project)
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetRawBytes(out, "request", inner)
	out, _ = sjson.SetBytes(out, "requestId", uuid.NewString())
	return out
}
