package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CollabSession is the server-side record of live editing on one resource
type CollabSession struct {
	ID           uuid.UUID      `json:"id"`
	TeamID       uuid.UUID      `json:"team_id"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Participants []uuid.UUID    `json:"participants"`
	State        map[string]any `json:"state,omitempty"`
	LastSequence int64          `json:"last_sequence"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Operation is one ordered edit event within a collaborative session
type Operation struct {
	ID             uuid.UUID       `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Sequence       int64           `json:"sequence"`
	ClientSequence *int64          `json:"client_sequence,omitempty"`
	AppliedAt      time.Time       `json:"applied_at"`
}

// CollabSessionRepository persists collaborative sessions
type CollabSessionRepository interface {
	Upsert(ctx context.Context, session *CollabSession) error
	GetByResource(ctx context.Context, teamID uuid.UUID, resourceType, resourceID string) (*CollabSession, error)
}

// OperationRepository persists the ordered operation log
type OperationRepository interface {
	Append(ctx context.Context, op *Operation) error
	ListSince(ctx context.Context, sessionID uuid.UUID, afterSequence int64, limit int) ([]Operation, error)
	MaxSequence(ctx context.Context, sessionID uuid.UUID) (int64, error)
}
