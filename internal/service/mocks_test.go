package service

import (
	"context"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockMembershipRepository mocks the MembershipRepository interface
type MockMembershipRepository struct {
	mock.Mock
}

func (m *MockMembershipRepository) CreateTeam(ctx context.Context, team *domain.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *MockMembershipRepository) AddMember(ctx context.Context, member *domain.TeamMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMembershipRepository) IsActiveMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, teamID, userID)
	return args.Bool(0), args.Error(1)
}

// MockPresenceSource mocks the PresenceSource interface
type MockPresenceSource struct {
	mock.Mock
}

func (m *MockPresenceSource) Snapshot(ctx context.Context, teamID, excludeUserID uuid.UUID) []domain.Presence {
	args := m.Called(ctx, teamID, excludeUserID)
	return args.Get(0).([]domain.Presence)
}

// MockCollabSessionRepository mocks the CollabSessionRepository interface
type MockCollabSessionRepository struct {
	mock.Mock
}

func (m *MockCollabSessionRepository) Upsert(ctx context.Context, s *domain.CollabSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockCollabSessionRepository) GetByResource(ctx context.Context, teamID uuid.UUID, resourceType, resourceID string) (*domain.CollabSession, error) {
	args := m.Called(ctx, teamID, resourceType, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CollabSession), args.Error(1)
}

// MockOperationRepository mocks the OperationRepository interface
type MockOperationRepository struct {
	mock.Mock
}

func (m *MockOperationRepository) Append(ctx context.Context, op *domain.Operation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockOperationRepository) ListSince(ctx context.Context, sessionID uuid.UUID, afterSequence int64, limit int) ([]domain.Operation, error) {
	args := m.Called(ctx, sessionID, afterSequence, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Operation), args.Error(1)
}

func (m *MockOperationRepository) MaxSequence(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}
