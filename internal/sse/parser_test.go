package sse

import (
	"testing"
)

func TestFeed_SingleFrame(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("event: message_start\ndata: {\"type\":\"message_start\"}\n\n"))
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Name != "message_start" {
		t.Errorf("name = %q", events[0].Name)
	}
	if string(events[0].Data) != `{"type":"message_start"}` {
		t.Errorf("data = %q", events[0].Data)
	}
}

func TestFeed_PartialAcrossChunks(t *testing.T) {
	var p Parser
	if events := p.Feed([]byte("data: {\"a\":")); len(events) != 0 {
		t.Fatalf("incomplete frame should not emit, got %d", len(events))
	}
	events := p.Feed([]byte("1}\n\ndata: {\"b\":2}\n\n"))
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if string(events[0].Data) != `{"a":1}` || string(events[1].Data) != `{"b":2}` {
		t.Errorf("data = %q, %q", events[0].Data, events[1].Data)
	}
}

func TestFeed_DoneSentinel(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("data: [DONE]\n\n"))
	if len(events) != 1 || !events[0].IsDone() {
		t.Fatalf("expected [DONE] sentinel, got %+v", events)
	}
}

func TestFeed_CRLF(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("data: x\r\n\r\n"))
	if len(events) != 1 || string(events[0].Data) != "x" {
		t.Fatalf("crlf frame = %+v", events)
	}
}

func TestFeed_MultiLineData(t *testing.T) {
	var p Parser
	events := p.Feed([]byte("data: line1\ndata: line2\n\n"))
	if len(events) != 1 || string(events[0].Data) != "line1\nline2" {
		t.Fatalf("multi-line data = %q", events[0].Data)
	}
}

func TestFeed_UnknownEventPreservedRaw(t *testing.T) {
	var p Parser
	frame := "event: custom_thing\ndata: {\"x\":1}"
	events := p.Feed([]byte(frame + "\n\n"))
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	if string(events[0].Raw) != frame {
		t.Errorf("raw = %q, want %q", events[0].Raw, frame)
	}
}

func TestFlush(t *testing.T) {
	var p Parser
	p.Feed([]byte("data: trailing"))
	events := p.Flush()
	if len(events) != 1 || string(events[0].Data) != "trailing" {
		t.Fatalf("flush = %+v", events)
	}
	if events = p.Flush(); len(events) != 0 {
		t.Errorf("second flush should be empty")
	}
}
