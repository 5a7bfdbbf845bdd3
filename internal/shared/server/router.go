package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"course-backend/internal/sections"
	"course-backend/internal/shared/config"
	"course-backend/internal/shared/metrics"
	"course-backend/internal/shared/server/middleware"
	"course-backend/internal/shared/server/respond"
	"course-backend/internal/uploads"
)

// RouterDeps are the handlers mounted under /api/v1.
type RouterDeps struct {
	Config          config.Config
	SectionsHandler *sections.Handler
	UploadsHandler  *uploads.Handler
	RateLimits      map[string]middleware.RateLimitRule
	// Health reports readiness; nil always reports ok.
	Health func() error
}

// DefaultRateLimits applies a tighter budget to upload traffic than to metadata calls.
func DefaultRateLimits() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		middleware.DefaultRateLimitGroup: {Rate: 20, Burst: 60},
		middleware.UploadsRateLimitGroup: {Rate: 2, Burst: 10},
	}
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	rules := deps.RateLimits
	if rules == nil {
		rules = DefaultRateLimits()
	}
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rules,
			GroupFor: rateLimitGroup,
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "unavailable", "dependency check failed", nil)
				return
			}
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.SectionsHandler != nil {
		deps.SectionsHandler.RegisterRoutes(api)
	}
	if deps.UploadsHandler != nil {
		deps.UploadsHandler.RegisterRoutes(api)
		deps.UploadsHandler.RegisterObjectRoutes(api)
	}

	return r
}

func rateLimitGroup(c *gin.Context) string {
	p := c.Request.URL.Path
	if strings.HasPrefix(p, "/api/v1/uploads/") || strings.HasSuffix(p, "/uploads") {
		return middleware.UploadsRateLimitGroup
	}
	if p == "/metrics" || p == "/api/v1/health" {
		return "UNLIMITED"
	}
	return middleware.DefaultRateLimitGroup
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
