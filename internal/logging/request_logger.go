package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// PayloadLogger records upstream request/response payloads for debugging.
// Implementations must tolerate concurrent calls.
type PayloadLogger interface {
	Enabled() bool
	Record(entry PayloadEntry)
}

// PayloadEntry is one upstream exchange, captured after the attempt finished.
type PayloadEntry struct {
	ReqID    string
	Attempt  int
	Provider string
	Model    string
	Endpoint string
	Status   int
	// Streaming marks entries whose response body went straight to the
	// client and is not captured here.
	Streaming bool
	Request   []byte
	Response  []byte
}

// FilePayloadLogger writes one file per upstream exchange under dir.
type FilePayloadLogger struct {
	dir string

	mu  sync.Mutex
	seq int
}

func NewFilePayloadLogger(dir string) *FilePayloadLogger {
	return &FilePayloadLogger{dir: dir}
}

func (l *FilePayloadLogger) Enabled() bool { return l != nil }

// Record writes the exchange to a timestamped file. Failures are logged and
// swallowed so payload capture never affects request handling.
func (l *FilePayloadLogger) Record(entry PayloadEntry) {
	if l == nil {
		return
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		log.Errorf("payload log: create dir: %v", err)
		return
	}

	l.mu.Lock()
	l.seq++
	name := fmt.Sprintf("%s_%s_a%d_%d.log",
		time.Now().Format("20060102-150405"), entry.ReqID, entry.Attempt, l.seq)
	l.mu.Unlock()

	content := formatPayload(entry)
	if err := os.WriteFile(filepath.Join(l.dir, name), []byte(content), 0o644); err != nil {
		log.Errorf("payload log: write: %v", err)
	}
}

func formatPayload(e PayloadEntry) string {
	mode := "unary"
	if e.Streaming {
		mode = "stream"
	}
	header := fmt.Sprintf("req: %s attempt %d\ntarget: %s/%s (%s)\nendpoint: %s\nstatus: %d\ntime: %s\n",
		e.ReqID, e.Attempt, e.Provider, e.Model, mode, e.Endpoint, e.Status,
		time.Now().Format(time.RFC3339))

	out := header + "\n=== REQUEST ===\n" + string(e.Request) + "\n"
	if e.Streaming {
		out += "\n=== RESPONSE ===\n[streamed to client]\n"
	} else {
		out += "\n=== RESPONSE ===\n" + string(e.Response) + "\n"
	}
	return out
}
