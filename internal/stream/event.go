// Package stream converts server-sent-event responses between the supported
// wire dialects. Frames are parsed into a small unified event model, side
// effects (signature capture, stop-reason patching) run against that model,
// and a target-dialect emitter rebuilds the outgoing frames.
package stream

// Kind tags a unified stream event.
type Kind int

const (
	// KindUnknown carries a frame the parser did not understand; it is
	// forwarded verbatim.
	KindUnknown Kind = iota
	// KindMessageStart opens the response message.
	KindMessageStart
	// KindTextDelta appends visible text to the current candidate.
	KindTextDelta
	// KindThinkingDelta appends thinking text and, optionally, the
	// signature that closes the thinking block.
	KindThinkingDelta
	// KindToolCall starts a tool invocation with its name and id.
	KindToolCall
	// KindToolArgsDelta appends partial JSON to the open tool call.
	KindToolArgsDelta
	// KindFinish closes the message with a stop reason and usage.
	KindFinish
	// KindDone is the [DONE] sentinel.
	KindDone
)

// Event is one dialect-independent stream increment.
type Event struct {
	Kind  Kind
	Index int

	Text      string
	Signature string

	ToolID   string
	ToolName string
	ToolArgs string

	StopReason   string
	InputTokens  int64
	OutputTokens int64

	// Raw is the source frame payload, kept for passthrough of unknown
	// events.
	Raw []byte
}
