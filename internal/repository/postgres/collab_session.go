package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (team_id, resource_type, resource_id) DO UPDATE
		SET participants = $5,
		    state = $6,
		    last_sequence = GREATEST(collab_sessions.last_sequence, $7),
		    updated_at = $9
	`

	_, err = r.db.Pool.Exec(ctx, query,
		s.ID,
		s.TeamID,
		s.ResourceType,
		s.ResourceID,
		participants,
		state,
		s.LastSequence,
		s.CreatedAt,
		s.UpdatedAt,
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
		WHERE team_id = $1 AND resource_type = $2 AND resource_id = $3
	`

	var s domain.CollabSession
	var participants, state []byte

	err := r.db.Pool.QueryRow(ctx, query, teamID, resourceType, resourceID).Scan(
		&s.ID,
		&s.TeamID,
		&s.ResourceType,
		&s.ResourceID,
		&participants,
		&state,
		&s.LastSequence,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &s.Participants); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
		}
	}
	if len(state) > 0 {
		if err := json.Unmarshal(state, &s.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state: %w", err)
		}
	}

	return &s, nil
}
