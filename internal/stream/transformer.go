package stream

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmux/llmux/internal/provider"
	"github.com/llmux/llmux/internal/signature"
	"github.com/llmux/llmux/internal/sse"
)

// ChunkCacher receives streamed thinking text and signatures for the
// session-scoped caches.
type ChunkCacher interface {
	CacheSignatureFromChunk(sessionKey, model, text, sig string, buffers map[int]*strings.Builder, idx int)
}

// SignatureContext identifies where captured signatures are valid. Save is
// skipped when ProjectID is empty.
type SignatureContext struct {
	ProjectID string
	Endpoint  string
	Account   string
}

// Options configure a Transformer for one stream.
type Options struct {
	// Source and Target are wire dialects.
	Source string
	Target string
	// Upstream is the provider name the stream comes from; it decides
	// whether signatures are persisted.
	Upstream string
	// Model is stamped into re-emitted frames.
	Model string

	SessionKey string
	Cacher     ChunkCacher
	Saver      signature.Saver
	SigContext *SignatureContext
}

// Transformer converts one upstream SSE stream into the client dialect,
// capturing signatures and patching stop reasons on the way through.
type Transformer struct {
	opts    Options
	parser  sse.Parser
	emitter Emitter

	buffers    map[int]*strings.Builder
	savedSigs  map[string]bool
	sawToolUse bool
}

// NewTransformer builds a transformer for one stream.
func NewTransformer(opts Options) *Transformer {
	return &Transformer{
		opts:      opts,
		emitter:   NewEmitter(opts.Target, opts.Model),
		buffers:   make(map[int]*strings.Builder),
		savedSigs: make(map[string]bool),
	}
}

// Feed consumes an upstream chunk and returns the bytes to forward.
func (t *Transformer) Feed(chunk []byte) []byte {
	var out []byte
	for _, ev := range t.parser.Feed(chunk) {
		out = append(out, t.process(ev)...)
	}
	return out
}

// Flush drains any partial trailing frame at stream end.
func (t *Transformer) Flush() []byte {
	var out []byte
	for _, ev := range t.parser.Flush() {
		out = append(out, t.process(ev)...)
	}
	return out
}

func (t *Transformer) process(ev sse.Event) []byte {
	events := Parse(t.opts.Source, ev)
	for i := range events {
		t.observe(&events[i])
	}

	if t.opts.Source == t.opts.Target {
		return t.forward(ev, events)
	}

	var out []byte
	for _, ue := range events {
		if ue.Kind == KindUnknown {
			// A frame we could not decode at all is forwarded rather
			// than dropped; decoded no-ops stay behind.
			if !gjson.ValidBytes(ev.Data) && len(ev.Data) > 0 {
				out = append(out, rebuildFrame(ev)...)
			}
			continue
		}
		for _, f := range t.emitter.Emit(ue) {
			out = append(out, f...)
		}
	}
	return out
}

// observe runs the capture side effects and the stop-reason patch against a
// unified event before it is re-emitted.
func (t *Transformer) observe(ue *Event) {
	switch ue.Kind {
	case KindThinkingDelta:
		if t.opts.Cacher != nil {
			t.opts.Cacher.CacheSignatureFromChunk(t.opts.SessionKey, t.opts.Model, ue.Text, ue.Signature, t.buffers, ue.Index)
		}
		t.saveSignature(ue.Signature)
	case KindToolCall:
		t.sawToolUse = true
	case KindFinish:
		if ue.StopReason == "end_turn" && t.sawToolUse {
			ue.StopReason = "tool_use"
		}
	}
}

func (t *Transformer) saveSignature(sig string) {
	if sig == "" || len(sig) < signature.MinLength {
		return
	}
	if t.opts.Saver == nil || t.opts.SigContext == nil || t.opts.SigContext.ProjectID == "" {
		return
	}
	if !signatureBearing(t.opts.Upstream) {
		return
	}
	if t.savedSigs[sig] {
		return
	}
	t.savedSigs[sig] = true

	err := t.opts.Saver.Save(signature.Record{
		Signature: sig,
		ProjectID: t.opts.SigContext.ProjectID,
		Provider:  t.opts.Upstream,
		Endpoint:  t.opts.SigContext.Endpoint,
		Account:   t.opts.SigContext.Account,
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		log.WithError(err).Warn("stream: signature persist failed")
	}
}

// forward handles the same-dialect path: frames pass through verbatim except
// for the stop-reason patch.
func (t *Transformer) forward(ev sse.Event, events []Event) []byte {
	for _, ue := range events {
		if ue.Kind == KindFinish && ue.StopReason == "tool_use" &&
			gjson.GetBytes(ev.Data, "delta.stop_reason").String() == "end_turn" {
			patched, err := sjson.SetBytes(ev.Data, "delta.stop_reason", "tool_use")
			if err != nil {
				break
			}
			rebuilt := ev
			rebuilt.Data = patched
			rebuilt.Raw = nil
			return rebuildFrame(rebuilt)
		}
	}
	return rebuildFrame(ev)
}

func rebuildFrame(ev sse.Event) []byte {
	if len(ev.Raw) > 0 {
		return append(append([]byte(nil), ev.Raw...), '\n', '\n')
	}
	if ev.Name != "" {
		return namedFrame(ev.Name, ev.Data)
	}
	return frame(ev.Data)
}

func signatureBearing(upstream string) bool {
	return upstream == provider.Anthropic || upstream == provider.Antigravity
}
