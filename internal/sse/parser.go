// Package sse implements an incremental server-sent-events parser. Frames
// may be split across arbitrary chunk boundaries; unknown event types are
// preserved byte-for-byte so they can be forwarded verbatim.
package sse

import (
	"bytes"
	"strings"
)

// Done is the stream terminator payload.
const Done = "[DONE]"

// Event is one parsed SSE frame.
type Event struct {
	// Name is the value of the "event:" line, empty when absent.
	Name string
	// Data is the joined payload of the "data:" lines.
	Data []byte
	// Raw is the original frame text, without the blank-line separator,
	// for verbatim forwarding.
	Raw []byte
}

// IsDone reports whether the event is the [DONE] sentinel.
func (e Event) IsDone() bool {
	return bytes.Equal(bytes.TrimSpace(e.Data), []byte(Done))
}

// Parser accumulates chunks and yields complete frames.
type Parser struct {
	buf bytes.Buffer
}

// Feed appends a chunk and returns every frame completed by it.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf.Write(chunk)

	var events []Event
	for {
		raw := p.buf.Bytes()
		idx, sepLen := frameBoundary(raw)
		if idx < 0 {
			break
		}
		frame := append([]byte(nil), raw[:idx]...)
		p.buf.Next(idx + sepLen)
		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush drains whatever partial frame remains at stream end.
func (p *Parser) Flush() []Event {
	rest := bytes.TrimRight(p.buf.Bytes(), "\r\n")
	p.buf.Reset()
	if len(rest) == 0 {
		return nil
	}
	if ev, ok := parseFrame(rest); ok {
		return []Event{ev}
	}
	return nil
}

// frameBoundary finds the first blank-line separator, tolerating \r\n.
func frameBoundary(raw []byte) (idx, sepLen int) {
	lf := bytes.Index(raw, []byte("\n\n"))
	crlf := bytes.Index(raw, []byte("\r\n\r\n"))
	switch {
	case lf < 0 && crlf < 0:
		return -1, 0
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	default:
		return lf, 2
	}
}

func parseFrame(frame []byte) (Event, bool) {
	ev := Event{Raw: frame}
	var dataLines []string
	hasField := false

	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(line[len("event:"):])
			hasField = true
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(line[len("data:"):], " "))
			hasField = true
		case strings.HasPrefix(line, ":"):
			// comment line, keep the frame alive but contribute nothing
			hasField = true
		case line == "":
		default:
			// unrecognized field, forwarded via Raw
			hasField = true
		}
	}
	if !hasField {
		return Event{}, false
	}
	ev.Data = []byte(strings.Join(dataLines, "\n"))
	return ev, true
}
