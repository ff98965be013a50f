package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

var (
	ErrAccessDenied = errors.New("access denied")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultOperationLimit = 100
	maxOperationLimit     = 1000
)

// PresenceSource lists team presence with live status applied
type PresenceSource interface {
	Snapshot(ctx context.Context, teamID, excludeUserID uuid.UUID) []domain.Presence
}

// TeamService answers read queries about a team's realtime state
type TeamService struct {
	membership domain.MembershipRepository
	presence   PresenceSource
	sessions   domain.CollabSessionRepository
	operations domain.OperationRepository
}

// NewTeamService creates a new team service
func NewTeamService(
	membership domain.MembershipRepository,
	presence PresenceSource,
	sessions domain.CollabSessionRepository,
	operations domain.OperationRepository,
) *TeamService {
	return &TeamService{
		membership: membership,
		presence:   presence,
		sessions:   sessions,
		operations: operations,
	}
}

func (s *TeamService) checkAccess(ctx context.Context, userID, teamID uuid.UUID) error {
	active, err := s.membership.IsActiveMember(ctx, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !active {
		return ErrAccessDenied
	}
	return nil
}

// ListPresence returns every known presence record of the team
func (s *TeamService) ListPresence(ctx context.Context, userID, teamID uuid.UUID) ([]domain.Presence, error) {
	if err := s.checkAccess(ctx, userID, teamID); err != nil {
		return nil, err
	}
	return s.presence.Snapshot(ctx, teamID, uuid.Nil), nil
}

// OperationsQuery selects recorded operations of one resource
type OperationsQuery struct {
	ResourceType string `validate:"required,max=64"`
	ResourceID   string `validate:"required,max=256"`
	After        int64  `validate:"gte=0"`
	Limit        int    `validate:"gte=0"`
}

// ListOperations returns operations recorded after q.After in sequence
// order. A resource that was never edited has no operations.
func (s *TeamService) ListOperations(ctx context.Context, userID, teamID uuid.UUID, q OperationsQuery) ([]domain.Operation, error) {
	if err := validate.Struct(q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.checkAccess(ctx, userID, teamID); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByResource(ctx, teamID, q.ResourceType, q.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return []domain.Operation{}, nil
	}

	limit := q.Limit
	if limit == 0 {
		limit = defaultOperationLimit
	}
	if limit > maxOperationLimit {
		limit = maxOperationLimit
	}

	ops, err := s.operations.ListSince(ctx, session.ID, q.After, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// EnsureMember creates the team if needed and adds the user as an active
// member. Used to seed local environments.
func (s *TeamService) EnsureMember(ctx context.Context, teamID uuid.UUID, teamName string, userID uuid.UUID, role string) error {
	now := time.Now()
	team := &domain.Team{
		ID:        teamID,
		Name:      teamName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.membership.CreateTeam(ctx, team); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	if role == "" {
		role = domain.RoleMember
	}
	member := &domain.TeamMember{
		TeamID:    teamID,
		UserID:    userID,
		Role:      role,
		Status:    domain.MemberStatusActive,
		CreatedAt: now,
	}
	if err := s.membership.AddMember(ctx, member); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}
