package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConnectionRecord mirrors a live hub connection for external tooling.
// The hub writes it on open and removes it on close; it never reads it back.
type ConnectionRecord struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	SessionID    uuid.UUID `json:"session_id"`
	UserID       uuid.UUID `json:"user_id"`
	TeamID       uuid.UUID `json:"team_id"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	RemoteAddr   string    `json:"remote_addr,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// ConnectionRecordRepository stores connection records
type ConnectionRecordRepository interface {
	Create(ctx context.Context, record *ConnectionRecord) error
	Touch(ctx context.Context, connectionID uuid.UUID, at time.Time) error
	Delete(ctx context.Context, connectionID uuid.UUID) error
}
