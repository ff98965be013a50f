package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
)

// ConnectionRecordRepository stores connection-session records in PostgreSQL
type ConnectionRecordRepository struct {
	db *DB
}

// NewConnectionRecordRepository creates a new connection record repository
func NewConnectionRecordRepository(db *DB) *ConnectionRecordRepository {
	return &ConnectionRecordRepository{db: db}
}

// Create inserts a connection record
func (r *ConnectionRecordRepository) Create(ctx context.Context, rec *domain.ConnectionRecord) error {
	query := `
		INSERT INTO connection_sessions (
			connection_id, session_id, user_id, team_id, resource_type,
			resource_id, remote_addr, connected_at, last_active_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.ConnectionID,
		rec.SessionID,
		rec.UserID,
		rec.TeamID,
		rec.ResourceType,
		rec.ResourceID,
		rec.RemoteAddr,
		rec.ConnectedAt,
		rec.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create connection record: %w", err)
	}
	return nil
}

// Touch updates the last activity of a connection record
func (r *ConnectionRecordRepository) Touch(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	query := `UPDATE connection_sessions SET last_active_at = $2 WHERE connection_id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, connectionID, at); err != nil {
		return fmt.Errorf("failed to touch connection record: %w", err)
	}
	return nil
}

// Delete removes a connection record
func (r *ConnectionRecordRepository) Delete(ctx context.Context, connectionID uuid.UUID) error {
	query := `DELETE FROM connection_sessions WHERE connection_id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, connectionID); err != nil {
		return fmt.Errorf("failed to delete connection record: %w", err)
	}
	return nil
}
