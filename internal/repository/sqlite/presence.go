package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
)

// PresenceRepository handles presence data access
type PresenceRepository struct {
	db *DB
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(db *DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// Upsert inserts or replaces the presence record for (user, team)
func (r *PresenceRepository) Upsert(ctx context.Context, p *domain.Presence) error {
	var activity sql.NullString
	if p.Activity != nil {
		data, err := json.Marshal(p.Activity)
		if err != nil {
			return fmt.Errorf("failed to marshal activity: %w", err)
		}
		activity = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO user_presence (user_id, team_id, status, location, activity, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, team_id) DO UPDATE
		SET status = excluded.status,
		    location = excluded.location,
		    activity = excluded.activity,
		    last_seen = excluded.last_seen,
		    updated_at = excluded.updated_at
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		p.UserID.String(),
		p.TeamID.String(),
		string(p.Status),
		p.Location,
		activity,
		toNanos(p.LastSeen),
		toNanos(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}
	return nil
}

// Delete removes the presence record for (user, team)
func (r *PresenceRepository) Delete(ctx context.Context, userID, teamID uuid.UUID) error {
	query := `DELETE FROM user_presence WHERE user_id = ? AND team_id = ?`

	if _, err := r.db.conn.ExecContext(ctx, query, userID.String(), teamID.String()); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

// ListByTeam retrieves all presence records of a team
func (r *PresenceRepository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]domain.Presence, error) {
	query := `
		SELECT user_id, team_id, status, location, activity, last_seen, updated_at
		FROM user_presence
		WHERE team_id = ?
		ORDER BY last_seen DESC
	`

	rows, err := r.db.conn.QueryContext(ctx, query, teamID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	defer rows.Close()

	var records []domain.Presence
	for rows.Next() {
		var p domain.Presence
		var status string
		var activity sql.NullString
		var lastSeen, updatedAt int64

		if err := rows.Scan(
			&p.UserID,
			&p.TeamID,
			&status,
			&p.Location,
			&activity,
			&lastSeen,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan presence: %w", err)
		}
		p.Status = domain.PresenceStatus(status)
		p.LastSeen = fromNanos(lastSeen)
		p.UpdatedAt = fromNanos(updatedAt)

		if activity.Valid && activity.String != "" {
			if err := json.Unmarshal([]byte(activity.String), &p.Activity); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity: %w", err)
			}
		}
		records = append(records, p)
	}

	return records, rows.Err()
}
