package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLog logs every request with method, path, remote IP, status code,
// and latency, in a single structured line.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("method=%s path=%s remote=%s status=%d latency=%s",
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// Recovery turns a panic anywhere downstream into a 500 response instead
// of killing the request goroutine, so one handler bug doesn't take the
// whole listener down.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered: %v", err)
				c.AbortWithStatusJSON(500, gin.H{"status": "error", "kind": "internal", "message": "internal server error"})
			}
		}()
		c.Next()
	}
}
