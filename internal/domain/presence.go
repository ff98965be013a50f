package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PresenceStatus is derived from live connection count, never set by clients
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the status of a user within a team
type Presence struct {
	UserID    uuid.UUID      `json:"user_id"`
	TeamID    uuid.UUID      `json:"team_id"`
	Status    PresenceStatus `json:"status"`
	Location  string         `json:"location,omitempty"`
	Activity  map[string]any `json:"activity,omitempty"`
	LastSeen  time.Time      `json:"last_seen"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PresenceRepository persists presence records
type PresenceRepository interface {
	Upsert(ctx context.Context, presence *Presence) error
	Delete(ctx context.Context, userID, teamID uuid.UUID) error
	ListByTeam(ctx context.Context, teamID uuid.UUID) ([]Presence, error)
}
