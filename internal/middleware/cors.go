package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Content-Type, X-Request-Id"
	corsMaxAge  = "600"
)

// CORS lets the browser frontend call the API. An empty allowlist allows any
// origin; otherwise only listed origins are echoed back. Preflight requests
// end here with 204.
func CORS(allowlist []string) gin.HandlerFunc {
	allowOrigin := originPolicy(allowlist)
	return func(c *gin.Context) {
		header := c.Writer.Header()
		if value, ok := allowOrigin(c.GetHeader("Origin")); ok {
			header.Set("Access-Control-Allow-Origin", value)
			header.Set("Access-Control-Allow-Methods", corsMethods)
			header.Set("Access-Control-Allow-Headers", corsHeaders)
			header.Set("Access-Control-Expose-Headers", RequestIDHeader)
			header.Set("Access-Control-Max-Age", corsMaxAge)
			if value != "*" {
				header.Add("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func originPolicy(allowlist []string) func(origin string) (string, bool) {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, origin := range allowlist {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return func(string) (string, bool) { return "*", true }
	}
	return func(origin string) (string, bool) {
		if origin == "" {
			return "", false
		}
		_, ok := allowed[origin]
		return origin, ok
	}
}
