// Package repository selects and opens the storage backends for the hub.
package repository

import (
	"context"
	"fmt"

	"github.com/Rrens/collab-hub/internal/config"
	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/Rrens/collab-hub/internal/repository/postgres"
	"github.com/Rrens/collab-hub/internal/repository/redis"
	"github.com/Rrens/collab-hub/internal/repository/sqlite"
	"github.com/rs/zerolog/log"
)

// Pinger is implemented by every backend that can report its health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores groups the repositories the hub and the REST handlers depend on
type Stores struct {
	Membership  domain.MembershipRepository
	Presence    domain.PresenceRepository
	Sessions    domain.CollabSessionRepository
	Operations  domain.OperationRepository
	Connections domain.ConnectionRecordRepository

	// RateLimiter is nil when Redis is disabled
	RateLimiter *redis.RateLimiter

	backends map[string]Pinger
	closers  []func()
}

// Open connects the configured SQL backend and, when enabled, Redis.
// Connection records live in Redis when it is available.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	s := &Stores{backends: make(map[string]Pinger)}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		s.backends["postgres"] = db

		s.Membership = postgres.NewTeamRepository(db)
		s.Presence = postgres.NewPresenceRepository(db)
		s.Sessions = postgres.NewCollabSessionRepository(db)
		s.Operations = postgres.NewOperationRepository(db)
		s.Connections = postgres.NewConnectionRecordRepository(db)

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { db.Close() })
		s.backends["sqlite"] = db
		log.Info().Str("path", db.Path()).Msg("Opened SQLite store")

		s.useSQLite(db)

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { client.Close() })
		s.backends["redis"] = client

		s.Connections = redis.NewConnectionRecordStore(client, cfg.Hub.RecordTTL)
		s.RateLimiter = redis.NewRateLimiter(client, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
	}

	return s, nil
}

// NewSQLiteStores wires every repository to an already opened SQLite database
func NewSQLiteStores(db *sqlite.DB) *Stores {
	s := &Stores{backends: map[string]Pinger{"sqlite": db}}
	s.useSQLite(db)
	return s
}

func (s *Stores) useSQLite(db *sqlite.DB) {
	s.Membership = sqlite.NewTeamRepository(db)
	s.Presence = sqlite.NewPresenceRepository(db)
	s.Sessions = sqlite.NewCollabSessionRepository(db)
	s.Operations = sqlite.NewOperationRepository(db)
	s.Connections = sqlite.NewConnectionRecordRepository(db)
}

// Ping checks every backend and returns the status of each
func (s *Stores) Ping(ctx context.Context) (map[string]string, error) {
	status := make(map[string]string, len(s.backends))
	var firstErr error
	for name, b := range s.backends {
		if err := b.Ping(ctx); err != nil {
			status[name] = "unavailable"
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			continue
		}
		status[name] = "ok"
	}
	return status, firstErr
}

// Close releases all backends in reverse open order
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
