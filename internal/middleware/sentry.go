package middleware

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/whale-spotting-api/pkg/middleware/requestid"
)

// ErrorReporting forwards server-side failures recorded on the gin context
// to Sentry. It also recovers panics, reports them and answers 500. With no
// Sentry client bound, events are dropped by the SDK.
func ErrorReporting() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		if id := requestid.Value(c); id != "" {
			hub.Scope().SetTag("request_id", id)
		}

		defer func() {
			if recovered := recover(); recovered != nil {
				hub.RecoverWithContext(c.Request.Context(), recovered)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()

		c.Next()

		if c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		hub.Scope().SetTag("route", c.FullPath())
		for _, ginErr := range c.Errors {
			hub.CaptureException(ginErr.Err)
		}
	}
}
