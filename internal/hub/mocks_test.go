package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVerifier mocks the IdentityVerifier interface
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyToken(ctx context.Context, token string) (*domain.UserIdentity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserIdentity), args.Error(1)
}

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

// MockPresenceRepository mocks the PresenceRepository interface
type MockPresenceRepository struct {
	mock.Mock
}

func (m *MockPresenceRepository) Upsert(ctx context.Context, p *domain.Presence) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPresenceRepository) Delete(ctx context.Context, userID, teamID uuid.UUID) error {
	args := m.Called(ctx, userID, teamID)
	return args.Error(0)
}

func (m *MockPresenceRepository) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]domain.Presence, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Presence), args.Error(1)
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

// MockConnectionRecordRepository mocks the ConnectionRecordRepository interface
type MockConnectionRecordRepository struct {
	mock.Mock
}

func (m *MockConnectionRecordRepository) Create(ctx context.Context, rec *domain.ConnectionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockConnectionRecordRepository) Touch(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, connectionID, at)
	return args.Error(0)
}

func (m *MockConnectionRecordRepository) Delete(ctx context.Context, connectionID uuid.UUID) error {
	args := m.Called(ctx, connectionID)
	return args.Error(0)
}

// fakeSender records frames instead of writing to a socket
type fakeSender struct {
	mu       sync.Mutex
	frames   [][]byte
	attempts int
	fail     bool
	closed   bool
	reason   string
}

func (s *fakeSender) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.fail {
		return errors.New("socket broken")
	}
	s.frames = append(s.frames, msg)
	return nil
}

func (s *fakeSender) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.reason = reason
}

func (s *fakeSender) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeSender) Messages(t *testing.T) []Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.frames))
	for _, f := range s.frames {
		var m Message
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (s *fakeSender) OfType(t *testing.T, typ MessageType) []Message {
	t.Helper()
	var out []Message
	for _, m := range s.Messages(t) {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (s *fakeSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
	s.attempts = 0
}

// testDeps holds permissive mocks; tests override expectations as needed
type testDeps struct {
	verifier   *MockVerifier
	membership *MockMembershipRepository
	presence   *MockPresenceRepository
	sessions   *MockCollabSessionRepository
	operations *MockOperationRepository
	records    *MockConnectionRecordRepository
}

func newTestDeps() *testDeps {
	d := &testDeps{
		verifier:   new(MockVerifier),
		membership: new(MockMembershipRepository),
		presence:   new(MockPresenceRepository),
		sessions:   new(MockCollabSessionRepository),
		operations: new(MockOperationRepository),
		records:    new(MockConnectionRecordRepository),
	}
	return d
}

// permissive makes every store call succeed with empty results
func (d *testDeps) permissive() *testDeps {
	d.presence.On("Upsert", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.presence.On("Delete", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.presence.On("ListByTeam", mock.Anything, mock.Anything).Return(nil, errors.New("no store")).Maybe()
	d.sessions.On("GetByResource", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	d.sessions.On("Upsert", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.operations.On("Append", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.operations.On("MaxSequence", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()
	d.records.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	d.records.On("Touch", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	d.records.On("Delete", mock.Anything, mock.Anything).Return(nil).Maybe()
	return d
}

func (d *testDeps) hub() *Hub {
	return New(Deps{
		Verifier:    d.verifier,
		Membership:  d.membership,
		Presence:    d.presence,
		Sessions:    d.sessions,
		Operations:  d.operations,
		Connections: d.records,
	})
}

// openTestConn opens an already authorized connection on h
func openTestConn(t *testing.T, h *Hub, userID, teamID uuid.UUID, resource *ResourceKey) (*Connection, *fakeSender) {
	t.Helper()
	c := newConnection(h.now())
	c.UserID = userID
	c.TeamID = teamID
	c.Resource = resource
	sender := &fakeSender{}
	c.Attach(sender)
	require.NoError(t, h.Open(context.Background(), c))
	return c, sender
}
