package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
)

// CollabSessionRepository handles collaborative session data access
type CollabSessionRepository struct {
	db *DB
}

// NewCollabSessionRepository creates a new collaborative session repository
func NewCollabSessionRepository(db *DB) *CollabSessionRepository {
	return &CollabSessionRepository{db: db}
}

// Upsert inserts a session or updates participants and state of the existing one
func (r *CollabSessionRepository) Upsert(ctx context.Context, s *domain.CollabSession) error {
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	state, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO collab_sessions (
			id, team_id, resource_type, resource_id, participants, state,
			last_sequence, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_id, resource_type, resource_id) DO UPDATE
		SET participants = excluded.participants,
		    state = excluded.state,
		    last_sequence = MAX(collab_sessions.last_sequence, excluded.last_sequence),
		    updated_at = excluded.updated_at
	`

	_, err = r.db.conn.ExecContext(ctx, query,
		s.ID.String(),
		s.TeamID.String(),
		s.ResourceType,
		s.ResourceID,
		string(participants),
		string(state),
		s.LastSequence,
		toNanos(s.CreatedAt),
		toNanos(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// GetByResource retrieves the session of a resource, or nil when none exists
func (r *CollabSessionRepository) GetByResource(ctx context.Context, teamID uuid.UUID, resourceType, resourceID string) (*domain.CollabSession, error) {
	query := `
		SELECT id, team_id, resource_type, resource_id, participants, state,
		       last_sequence, created_at, updated_at
		FROM collab_sessions
		WHERE team_id = ? AND resource_type = ? AND resource_id = ?
	`

	var s domain.CollabSession
	var participants, state string
	var createdAt, updatedAt int64

	err := r.db.conn.QueryRowContext(ctx, query, teamID.String(), resourceType, resourceID).Scan(
		&s.ID,
		&s.TeamID,
		&s.ResourceType,
		&s.ResourceID,
		&participants,
		&state,
		&s.LastSequence,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.CreatedAt = fromNanos(createdAt)
	s.UpdatedAt = fromNanos(updatedAt)

	if err := json.Unmarshal([]byte(participants), &s.Participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &s.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &s, nil
}
