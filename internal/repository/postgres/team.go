package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
)

// TeamRepository handles team and membership data access
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// CreateTeam creates a team; an existing team with the same ID is left as is
func (r *TeamRepository) CreateTeam(ctx context.Context, team *domain.Team) error {
	settings, err := json.Marshal(team.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO teams (id, name, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.db.Pool.Exec(ctx, query,
		team.ID,
		team.Name,
		settings,
		team.CreatedAt,
		team.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	return nil
}

// AddMember adds or updates a member of a team
func (r *TeamRepository) AddMember(ctx context.Context, member *domain.TeamMember) error {
	query := `
		INSERT INTO team_members (team_id, user_id, role, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = $3, status = $4
	`

	_, err := r.db.Pool.Exec(ctx, query,
		member.TeamID,
		member.UserID,
		member.Role,
		member.Status,
		member.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

// IsActiveMember checks if a user holds an active membership in a team
func (r *TeamRepository) IsActiveMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM team_members
			WHERE team_id = $1 AND user_id = $2 AND status = $3
		)
	`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, teamID, userID, domain.MemberStatusActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return exists, nil
}
