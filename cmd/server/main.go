package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Rrens/collab-hub/internal/api"
	"github.com/Rrens/collab-hub/internal/config"
	"github.com/Rrens/collab-hub/internal/hub"
	"github.com/Rrens/collab-hub/internal/logger"
	"github.com/Rrens/collab-hub/internal/repository"
	"github.com/Rrens/collab-hub/internal/repository/postgres"
	"github.com/Rrens/collab-hub/internal/security"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logCloser.Close()

	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("auth.jwt_secret (JWT_SECRET) is required")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Msg("Starting collaboration hub")

	if cfg.Storage.Driver == config.DriverPostgres {
		if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.Migrations); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	stores, err := repository.Open(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer stores.Close()

	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)

	h := hub.New(hub.Deps{
		Verifier:    jwtManager,
		Membership:  stores.Membership,
		Presence:    stores.Presence,
		Sessions:    stores.Sessions,
		Operations:  stores.Operations,
		Connections: stores.Connections,
	})

	reaper := hub.NewReaper(h, cfg.Hub.ReapInterval, cfg.Hub.IdleTimeout)
	reaper.Start()

	baseCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()

	router := api.NewRouter(cfg, api.Deps{
		BaseCtx:    baseCtx,
		Hub:        h,
		Stores:     stores,
		JWTManager: jwtManager,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Hijacked websockets are not tracked by the HTTP server
	reaper.Stop()
	h.Shutdown(ctx)
	cancelConns()

	log.Info().Msg("Server stopped")
}
