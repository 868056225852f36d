package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig tunes the HTTP surface
type RouterConfig struct {
	RatePerSecond float64
}

// SetupRouter sets up the Gin router
func SetupRouter(h *Handlers, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))
	if cfg.RatePerSecond > 0 {
		router.Use(RateLimitPerIP(cfg.RatePerSecond))
	}

	router.GET("/challenges/pool", h.ChallengePool)

	users := router.Group("/users")
	{
		users.POST("/enroll", h.Enroll)
		users.POST("/:identity/enroll/frames", h.CaptureEnrollment)
		users.GET("/:identity/history", h.History)
		users.GET("/:identity/stats", h.Stats)
		users.GET("/:identity/token", h.CurrentToken)
		users.GET("/:identity/tokens", h.TokenHistory)
	}

	verifications := router.Group("/verifications")
	{
		verifications.POST("", h.StartVerification)
		verifications.GET("/:id", h.GetVerification)
		verifications.DELETE("/:id", h.CancelVerification)
		verifications.POST("/:id/frames", h.PushFrame)
		verifications.POST("/:id/retry", h.RetryVerification)
	}

	tokens := router.Group("/tokens")
	{
		tokens.POST("/introspect", h.Introspect)
		tokens.GET("/:id", h.ValidateToken)
		tokens.POST("/:id/revoke", h.RevokeToken)
	}

	return router
}
