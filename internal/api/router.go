package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/teamflux/teamflux-api/internal/api/handlers"
	"github.com/teamflux/teamflux-api/internal/api/middleware"
	"github.com/teamflux/teamflux-api/internal/config"
	"github.com/teamflux/teamflux-api/internal/service"
	"github.com/teamflux/teamflux-api/internal/socket"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Config   *config.Config
	Services *service.Services
	Hub      *socket.Hub
	Logger   zerolog.Logger
	// Database is nil when running on the in-memory store.
	Database Pinger
	// Cache is nil when Redis is not configured.
	Cache Pinger
}

// NewRouter wires middleware and every route onto a new gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config

	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsConfig))

	h := handlers.NewHandlers(deps.Services, deps.Logger)
	wsHandler := socket.NewHandler(deps.Hub, cfg.JWTSecret, cfg.CORSOrigins)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"timestamp":  time.Now().UTC(),
			"storage":    cfg.Storage,
			"database":   pingStatus(ctx, deps.Database, "memory"),
			"cache":      pingStatus(ctx, deps.Cache, "disabled"),
			"ws_clients": deps.Hub.ConnectedClients(),
		})
	})

	api := r.Group("/api")
	{
		// ============================================
		// Public routes (no auth required)
		// ============================================
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
			auth.POST("/logout", h.Auth.Logout)
		}

		// WebSocket route authenticates itself from ?token=
		api.GET("/ws", wsHandler.HandleWebSocket)

		// ============================================
		// Protected routes (require auth middleware)
		// ============================================
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(deps.Services.Auth, deps.Logger))
		{
			protected.GET("/auth/me", h.Auth.Me)

			projects := protected.Group("/projects")
			{
				projects.GET("/:id/technical-debts", h.TechnicalDebt.ListByProject)
				projects.POST("/:id/technical-debts", h.TechnicalDebt.Create)
				projects.GET("/:id/deprecations", h.Deprecation.ListByProject)
				projects.POST("/:id/deprecations", h.Deprecation.Create)
			}

			debts := protected.Group("/technical-debts")
			{
				debts.GET("/:id", h.TechnicalDebt.Get)
				debts.PUT("/:id", h.TechnicalDebt.Update)
				debts.DELETE("/:id", h.TechnicalDebt.Delete)
				debts.POST("/:id/convert", h.TechnicalDebt.Convert)

				// Comments
				debts.GET("/:id/comments", h.TechnicalDebt.ListComments)
				debts.POST("/:id/comments", h.TechnicalDebt.AddComment)
			}

			deprecations := protected.Group("/deprecations")
			{
				deprecations.GET("/:id", h.Deprecation.Get)
				deprecations.PUT("/:id", h.Deprecation.Update)
				deprecations.DELETE("/:id", h.Deprecation.Delete)

				// Relationship ledger
				deprecations.POST("/:id/links", h.Deprecation.Link)
				deprecations.DELETE("/:id/links/:technicalDebtId", h.Deprecation.Unlink)
				deprecations.POST("/:id/unlink", h.Deprecation.UnlinkByBody)
			}
		}
	}

	return r
}

func pingStatus(ctx context.Context, p Pinger, absent string) string {
	if p == nil {
		return absent
	}
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "connected"
}
