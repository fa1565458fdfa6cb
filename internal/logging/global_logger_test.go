package logging

import (
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormatterLine(t *testing.T) {
	f := &LogFormatter{}
	entry := &log.Entry{
		Logger:  log.StandardLogger(),
		Time:    time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "cooldown set\n",
		Data:    log.Fields{"provider": "openai", "model": "gpt-4o"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2026-08-25T12:30:00.000 WARN"))
	assert.Contains(t, line, "cooldown set")
	// Fields are sorted, so ordering is stable.
	assert.Contains(t, line, "model=gpt-4o provider=openai")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestLogFormatterWithoutCaller(t *testing.T) {
	f := &LogFormatter{}
	out, err := f.Format(&log.Entry{
		Logger:  log.StandardLogger(),
		Time:    time.Now(),
		Level:   log.InfoLevel,
		Message: "plain",
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), " - plain")
}
