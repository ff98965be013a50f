package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Team represents a tenant team
type Team struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Settings  map[string]any `json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TeamMember represents team membership
type TeamMember struct {
	TeamID    uuid.UUID `json:"team_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Role constants
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership status constants
const (
	MemberStatusActive    = "active"
	MemberStatusInvited   = "invited"
	MemberStatusSuspended = "suspended"
)

// MembershipRepository resolves whether a user may join a team's hub
type MembershipRepository interface {
	CreateTeam(ctx context.Context, team *Team) error
	AddMember(ctx context.Context, member *TeamMember) error
	IsActiveMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
}
