// Package logging configures the shared logrus instance, redirects gin's
// writers into it, and provides the optional rotating-file and payload
// capture outputs.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logDirName  = "logs"
	logFileName = "llmux.log"
)

var (
	setupOnce      sync.Once
	writerMu       sync.Mutex
	fileWriter     *lumberjack.Logger
	ginInfoWriter  *io.PipeWriter
	ginErrorWriter *io.PipeWriter
)

// LogFormatter renders one line per entry: timestamp, padded level, caller,
// message, then the entry fields as sorted key=value pairs.
type LogFormatter struct{}

func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	buf := entry.Buffer
	if buf == nil {
		buf = &bytes.Buffer{}
	}

	caller := "-"
	if entry.Caller != nil {
		caller = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	fmt.Fprintf(buf, "%s %-7s %s %s",
		entry.Time.Format("2006-01-02T15:04:05.000"),
		strings.ToUpper(entry.Level.String()),
		caller,
		strings.TrimRight(entry.Message, "\r\n"))

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(buf, " %s=%v", k, entry.Data[k])
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// SetupBaseLogger configures logrus and routes gin's default writers through
// it. Safe to call more than once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})

		ginInfoWriter = log.StandardLogger().Writer()
		gin.DefaultWriter = ginInfoWriter
		ginErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultErrorWriter = ginErrorWriter
		gin.DebugPrintFunc = func(format string, values ...any) {
			log.StandardLogger().Infof(strings.TrimRight(format, "\r\n"), values...)
		}

		log.RegisterExitHandler(closeLogOutputs)
	})
}

// ConfigureLogOutput switches the global destination between a rotating file
// under ./logs and stdout.
func ConfigureLogOutput(loggingToFile bool) error {
	SetupBaseLogger()

	writerMu.Lock()
	defer writerMu.Unlock()

	if !loggingToFile {
		if fileWriter != nil {
			_ = fileWriter.Close()
			fileWriter = nil
		}
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(logDirName, 0o755); err != nil {
		return fmt.Errorf("logging: create %s: %w", logDirName, err)
	}
	if fileWriter != nil {
		_ = fileWriter.Close()
	}
	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(logDirName, logFileName),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}
	log.SetOutput(fileWriter)
	return nil
}

func closeLogOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	if ginInfoWriter != nil {
		_ = ginInfoWriter.Close()
		ginInfoWriter = nil
	}
	if ginErrorWriter != nil {
		_ = ginErrorWriter.Close()
		ginErrorWriter = nil
	}
}
