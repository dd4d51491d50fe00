package restapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation id (reusing one supplied
// by the caller, if any), echoes it in the X-Request-ID response header,
// and stores it for Logger so a REST request can be traced through logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger is a gin middleware that logs every request with method, path,
// status code and latency, the way the teacher's Logger does with
// log.Printf — except through logrus, matching the rest of this repo's
// ambient stack.
func Logger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"client":     c.ClientIP(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"request_id": c.GetString("request_id"),
		}).Info("request")
	}
}

// Recovery recovers a panic in a later handler, logs it through logrus
// (matching Logger above) and answers 500 with a failed envelope; gin's
// own Recovery middleware is not used.
func Recovery(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).Error("panic recovered")
				c.AbortWithStatusJSON(500, envelope{Result: false})
			}
		}()
		c.Next()
	}
}
