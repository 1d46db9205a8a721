package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/layer-3/walletauth/service"
)

// RouterConfig holds the optional router dependencies
type RouterConfig struct {
	Logger *zap.Logger
	// LoginRatePerMinute throttles /auth per client IP; zero disables throttling.
	LoginRatePerMinute int
	// Metrics is served on /metrics when set.
	Metrics prometheus.Gatherer
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	handlers := NewAuthHandlers(authService, logger)

	// Auth routes
	auth := router.Group("/auth")
	auth.Use(NewRateLimiter(cfg.LoginRatePerMinute).Handler())
	{
		auth.POST("/wallet-login", handlers.Login)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{})))
	}

	return router
}
