package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultAllowOrigin  = "*"
	defaultAllowMethods = "POST, GET, OPTIONS"
	defaultAllowHeaders = "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Idempotency-Key"
)

// CORSMiddleware allows browser clients to call the API and answers preflight requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", defaultAllowOrigin)
		c.Header("Access-Control-Allow-Methods", defaultAllowMethods)
		c.Header("Access-Control-Allow-Headers", defaultAllowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
