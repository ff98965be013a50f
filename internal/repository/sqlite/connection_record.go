package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
)

// ConnectionRecordRepository stores connection-session records in SQLite
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		rec.ConnectionID.String(),
		rec.SessionID.String(),
		rec.UserID.String(),
		rec.TeamID.String(),
		rec.ResourceType,
		rec.ResourceID,
		rec.RemoteAddr,
		toNanos(rec.ConnectedAt),
		toNanos(rec.LastActiveAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create connection record: %w", err)
	}
	return nil
}

// Touch updates the last activity of a connection record
func (r *ConnectionRecordRepository) Touch(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	query := `UPDATE connection_sessions SET last_active_at = ? WHERE connection_id = ?`

	if _, err := r.db.conn.ExecContext(ctx, query, toNanos(at), connectionID.String()); err != nil {
		return fmt.Errorf("failed to touch connection record: %w", err)
	}
	return nil
}

// Delete removes a connection record
func (r *ConnectionRecordRepository) Delete(ctx context.Context, connectionID uuid.UUID) error {
	query := `DELETE FROM connection_sessions WHERE connection_id = ?`

	if _, err := r.db.conn.ExecContext(ctx, query, connectionID.String()); err != nil {
		return fmt.Errorf("failed to delete connection record: %w", err)
	}
	return nil
}

// Get retrieves a connection record, or nil when none exists
func (r *ConnectionRecordRepository) Get(ctx context.Context, connectionID uuid.UUID) (*domain.ConnectionRecord, error) {
	query := `
		SELECT connection_id, session_id, user_id, team_id, resource_type,
		       resource_id, remote_addr, connected_at, last_active_at
		FROM connection_sessions
		WHERE connection_id = ?
	`

	rows, err := r.db.conn.QueryContext(ctx, query, connectionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get connection record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var rec domain.ConnectionRecord
	var connectedAt, lastActiveAt int64
	if err := rows.Scan(
		&rec.ConnectionID,
		&rec.SessionID,
		&rec.UserID,
		&rec.TeamID,
		&rec.ResourceType,
		&rec.ResourceID,
		&rec.RemoteAddr,
		&connectedAt,
		&lastActiveAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan connection record: %w", err)
	}
	rec.ConnectedAt = fromNanos(connectedAt)
	rec.LastActiveAt = fromNanos(lastActiveAt)

	return &rec, nil
}
