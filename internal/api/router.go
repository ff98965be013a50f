package api

import (
	"context"
	"net/http"

	"github.com/Rrens/collab-hub/internal/api/handler"
	customMiddleware "github.com/Rrens/collab-hub/internal/api/middleware"
	"github.com/Rrens/collab-hub/internal/config"
	"github.com/Rrens/collab-hub/internal/hub"
	"github.com/Rrens/collab-hub/internal/repository"
	"github.com/Rrens/collab-hub/internal/security"
	"github.com/Rrens/collab-hub/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps are the components the router serves
type Deps struct {
	// BaseCtx bounds websocket connections; cancel it on shutdown
	BaseCtx    context.Context
	Hub        *hub.Hub
	Stores     *repository.Stores
	JWTManager *security.JWTManager
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Hub.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	baseCtx := deps.BaseCtx
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	teamService := service.NewTeamService(
		deps.Stores.Membership,
		deps.Hub.Presence(),
		deps.Stores.Sessions,
		deps.Stores.Operations,
	)
	teamHandler := handler.NewTeamHandler(teamService)
	wsHandler := handler.NewWebSocketHandler(
		baseCtx,
		deps.Hub,
		hub.ClientOptionsFromConfig(cfg.Hub),
		cfg.Hub.AllowedOrigins,
	)
	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWTManager)

	// Websocket upgrades are long lived and stay outside the request timeout
	r.Group(func(r chi.Router) {
		if deps.Stores.RateLimiter != nil {
			r.Use(customMiddleware.NewRateLimitMiddleware(deps.Stores.RateLimiter, "ws").Limit)
		}
		r.Get("/ws", wsHandler.Serve)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.MiddlewareTimeout > 0 {
			r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))
		}

		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Stores))
		r.Get("/stats", handler.Stats(deps.Hub))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/teams/{teamID}", func(r chi.Router) {
				r.Use(customMiddleware.TeamContext)

				r.Get("/presence", teamHandler.Presence)
				r.Get("/resources/{resourceType}/{resourceID}/operations", teamHandler.Operations)
			})
		})
	})

	return r
}
