package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS echoes allowed origins back with credentials enabled. Preflight
// requests are answered with 204 and cross-origin requests from other
// origins are refused.
func CORS(allowed func(origin string) bool) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  allowed,
		AllowCredentials: true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		MaxAge:           12 * time.Hour,
	})
}
