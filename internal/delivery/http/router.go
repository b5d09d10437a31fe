package http

import (
	"github.com/gdugdh24/pairprep-backend/internal/delivery/http/handler"
	"github.com/gdugdh24/pairprep-backend/internal/delivery/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Router struct {
	authHandler    *handler.AuthHandler
	matchHandler   *handler.MatchHandler
	authMiddleware *middleware.AuthMiddleware
	logger         *zap.Logger
}

func NewRouter(
	authHandler *handler.AuthHandler,
	matchHandler *handler.MatchHandler,
	authMiddleware *middleware.AuthMiddleware,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		authHandler:    authHandler,
		matchHandler:   matchHandler,
		authMiddleware: authMiddleware,
		logger:         logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(r.logger))

	// Health check (supports both GET and HEAD)
	healthHandler := func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.GET("/me", r.authMiddleware.RequireAuth(), r.authHandler.Me)
		}

		protected := v1.Group("")
		protected.Use(r.authMiddleware.RequireAuth())
		{
			tickets := protected.Group("/match/tickets")
			{
				tickets.POST("", r.matchHandler.Enqueue)
				tickets.GET("/:id", r.matchHandler.GetTicket)
				tickets.DELETE("/:id", r.matchHandler.Cancel)
				tickets.POST("/:id/heartbeat", r.matchHandler.Heartbeat)
				tickets.POST("/:id/match", r.matchHandler.TryMatch)
				tickets.POST("/:id/relax", r.matchHandler.Relax)
				tickets.POST("/:id/cancel", r.matchHandler.CancelWithRecovery)
			}

			protected.GET("/match/pairs/:id", r.matchHandler.GetPair)
		}
	}

	return router
}
