package main

import (
	"flag"
	"os"

	"github.com/Rrens/collab-hub/internal/config"
	"github.com/Rrens/collab-hub/internal/logger"
	"github.com/Rrens/collab-hub/internal/repository/postgres"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	down := flag.Bool("down", false, "roll migrations back instead of applying them")
	steps := flag.Int("steps", 1, "number of migrations to roll back with -down")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if _, err := logger.Setup(config.LoggingConfig{Level: cfg.Logging.Level, Format: "console"}); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}

	if cfg.Storage.Driver != config.DriverPostgres {
		log.Info().Str("driver", cfg.Storage.Driver).Msg("Schema is applied on open for this driver, nothing to migrate")
		os.Exit(0)
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("source", cfg.Database.Migrations).
		Msg("Migrating database")

	if *down {
		err = postgres.RollbackMigrations(cfg.Database.DSN(), cfg.Database.Migrations, *steps)
	} else {
		err = postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.Migrations)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}
