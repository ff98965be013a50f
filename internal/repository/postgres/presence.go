package postgres

import (
	"context"
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
	var activity []byte
	if p.Activity != nil {
		var err error
		activity, err = json.Marshal(p.Activity)
		if err != nil {
			return fmt.Errorf("failed to marshal activity: %w", err)
		}
	}

	query := `
		INSERT INTO user_presence (user_id, team_id, status, location, activity, last_seen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, team_id) DO UPDATE
		SET status = $3, location = $4, activity = $5, last_seen = $6, updated_at = $7
	`

	_, err := r.db.Pool.Exec(ctx, query,
		p.UserID,
		p.TeamID,
		string(p.Status),
		p.Location,
		activity,
		p.LastSeen,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}

	return nil
}

// Delete removes the presence record for (user, team)
func (r *PresenceRepository) Delete(ctx context.Context, userID, teamID uuid.UUID) error {
	query := `DELETE FROM user_presence WHERE user_id = $1 AND team_id = $2`

	_, err := r.db.Pool.Exec(ctx, query, userID, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	return nil
}

// ListByTeam retrieves all presence records of a team
func (r *PresenceRepository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]domain.Presence, error) {
	query := `
		SELECT user_id, team_id, status, location, activity, last_seen, updated_at
		FROM user_presence
		WHERE team_id = $1
		ORDER BY last_seen DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	defer rows.Close()

	var records []domain.Presence
	for rows.Next() {
		var p domain.Presence
		var status string
		var activity []byte

		if err := rows.Scan(
			&p.UserID,
			&p.TeamID,
			&status,
			&p.Location,
			&activity,
			&p.LastSeen,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan presence: %w", err)
		}
		p.Status = domain.PresenceStatus(status)

		if len(activity) > 0 {
			if err := json.Unmarshal(activity, &p.Activity); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity: %w", err)
			}
		}
		records = append(records, p)
	}

	return records, rows.Err()
}
