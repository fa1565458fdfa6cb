package logging

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GinLogrusLogger returns the access-log middleware: one structured line per
// request, leveled by response status.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"status":  status,
			"method":  c.Request.Method,
			"path":    c.Request.URL.RequestURI(),
			"ip":      c.ClientIP(),
			"latency": time.Since(start).Truncate(time.Millisecond).String(),
			"bytes":   c.Writer.Size(),
		})
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			entry = entry.WithField("errors", errs.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request")
		}
	}
}

// GinLogrusRecovery converts handler panics into logged 500 responses.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithFields(log.Fields{
			"path":  c.Request.URL.Path,
			"panic": recovered,
		}).Errorf("panic recovered\n%s", debug.Stack())
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
