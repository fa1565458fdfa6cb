package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePayloadLoggerWritesExchange(t *testing.T) {
	dir := t.TempDir()
	l := NewFilePayloadLogger(dir)
	require.True(t, l.Enabled())

	l.Record(PayloadEntry{
		ReqID:    "abc12345",
		Attempt:  2,
		Provider: "anthropic",
		Model:    "claude-sonnet-4-5",
		Endpoint: "https://api.anthropic.com/v1/messages",
		Status:   429,
		Request:  []byte(`{"model":"claude-sonnet-4-5"}`),
		Response: []byte(`{"error":{"type":"rate_limit_error"}}`),
	})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "abc12345_a2")

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "status: 429")
	assert.Contains(t, content, "anthropic/claude-sonnet-4-5")
	assert.Contains(t, content, "rate_limit_error")
}

func TestFilePayloadLoggerStreamingOmitsResponse(t *testing.T) {
	dir := t.TempDir()
	l := NewFilePayloadLogger(dir)

	l.Record(PayloadEntry{
		ReqID:     "deadbeef",
		Attempt:   1,
		Provider:  "gemini",
		Model:     "gemini-3-pro",
		Status:    200,
		Streaming: true,
		Request:   []byte(`{"contents":[]}`),
	})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[streamed to client]")
	assert.True(t, strings.Contains(string(data), "(stream)"))
}
