package httpapi

import (
	"persona-gateway/config"
	"persona-gateway/internal/interfaces/httpapi/middleware"
	"persona-gateway/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RouterDeps carries what the router needs beyond the handler. Limiter may
// be nil, which disables rate limiting.
type RouterDeps struct {
	Server    config.ServerConfig
	Auth      config.AuthConfig
	Limiter   *redis.Client
	RateLimit int
}

func NewRouter(h *Handler, deps RouterDeps) *gin.Engine {
	if deps.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(deps.Server.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS(deps.Server.CORSOrigins))
	if deps.Limiter != nil && deps.RateLimit > 0 {
		r.Use(middleware.RateLimit(deps.Limiter, deps.RateLimit))
	}

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/models", h.Models)

	api := r.Group("")
	if deps.Auth.JwtSecret != "" {
		api.Use(middleware.JwtAuth(deps.Auth.JwtSecret))
	}
	{
		api.POST("/chat", h.Chat)
		api.POST("/chat/stream", h.ChatStream)
		api.POST("/context/save", h.SaveContext)
		api.GET("/context/:id", h.GetContext)
		api.DELETE("/context/:id", h.DeleteContext)
		api.GET("/context/:id/archive", h.Archive)
	}

	return r
}
