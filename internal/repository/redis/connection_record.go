package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const connectionRecordPrefix = "collab:conn:"

// ConnectionRecordStore keeps connection-session records in Redis with a TTL.
// Records of crashed processes disappear once their TTL lapses.
type ConnectionRecordStore struct {
	client *Client
	ttl    time.Duration
}

// NewConnectionRecordStore creates a new connection record store
func NewConnectionRecordStore(client *Client, ttl time.Duration) *ConnectionRecordStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ConnectionRecordStore{client: client, ttl: ttl}
}

func recordKey(id uuid.UUID) string {
	return fmt.Sprintf("%s%s", connectionRecordPrefix, id.String())
}

// Create stores a record
func (s *ConnectionRecordStore) Create(ctx context.Context, rec *domain.ConnectionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal connection record: %w", err)
	}

	if err := s.client.rdb.Set(ctx, recordKey(rec.ConnectionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to create connection record: %w", err)
	}
	return nil
}

// Get retrieves a record, or nil when it does not exist or has expired
func (s *ConnectionRecordStore) Get(ctx context.Context, connectionID uuid.UUID) (*domain.ConnectionRecord, error) {
	data, err := s.client.rdb.Get(ctx, recordKey(connectionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection record: %w", err)
	}

	var rec domain.ConnectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection record: %w", err)
	}
	return &rec, nil
}

// Touch updates the last activity and refreshes the TTL.
// A record that already expired is left alone.
func (s *ConnectionRecordStore) Touch(ctx context.Context, connectionID uuid.UUID, at time.Time) error {
	rec, err := s.Get(ctx, connectionID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.LastActiveAt = at

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal connection record: %w", err)
	}

	if err := s.client.rdb.Set(ctx, recordKey(connectionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to touch connection record: %w", err)
	}
	return nil
}

// Delete removes a record
func (s *ConnectionRecordStore) Delete(ctx context.Context, connectionID uuid.UUID) error {
	if err := s.client.rdb.Del(ctx, recordKey(connectionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete connection record: %w", err)
	}
	return nil
}

