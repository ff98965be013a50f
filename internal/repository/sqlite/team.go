package sqlite

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

// CreateTeam creates a team unless one with the same ID exists
func (r *TeamRepository) CreateTeam(ctx context.Context, team *domain.Team) error {
	settings, err := json.Marshal(team.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `INSERT INTO teams (id, name, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`

	_, err = r.db.conn.ExecContext(ctx, query,
		team.ID.String(),
		team.Name,
		string(settings),
		toNanos(team.CreatedAt),
		toNanos(team.UpdatedAt),
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role, status = excluded.status
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		member.TeamID.String(),
		member.UserID.String(),
		member.Role,
		member.Status,
		toNanos(member.CreatedAt),
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
			WHERE team_id = ? AND user_id = ? AND status = ?
		)
	`

	var exists bool
	err := r.db.conn.QueryRowContext(ctx, query, teamID.String(), userID.String(), domain.MemberStatusActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}
