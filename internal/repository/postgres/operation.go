package postgres

import (
	"context"
	"fmt"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OperationRepository handles the collaborative operation log
type OperationRepository struct {
	db *DB
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Append records an operation and advances the session's last sequence
func (r *OperationRepository) Append(ctx context.Context, op *domain.Operation) error {
	insert := `
		INSERT INTO collab_operations (id, session_id, user_id, type, payload, sequence, client_sequence, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	bump := `
		UPDATE collab_sessions
		SET last_sequence = GREATEST(last_sequence, $2), updated_at = $3
		WHERE id = $1
	`

	var payload []byte
	if len(op.Payload) > 0 {
		payload = op.Payload
	}

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insert,
			op.ID,
			op.SessionID,
			op.UserID,
			op.Type,
			payload,
			op.Sequence,
			op.ClientSequence,
			op.AppliedAt,
		); err != nil {
			return fmt.Errorf("failed to append operation: %w", err)
		}
		if _, err := tx.Exec(ctx, bump, op.SessionID, op.Sequence, op.AppliedAt); err != nil {
			return fmt.Errorf("failed to advance session sequence: %w", err)
		}
		return nil
	})
}

// ListSince retrieves operations with sequence greater than afterSequence, oldest first
func (r *OperationRepository) ListSince(ctx context.Context, sessionID uuid.UUID, afterSequence int64, limit int) ([]domain.Operation, error) {
	query := `
		SELECT id, session_id, user_id, type, payload, sequence, client_sequence, applied_at
		FROM collab_operations
		WHERE session_id = $1 AND sequence > $2
		ORDER BY sequence ASC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, sessionID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		var op domain.Operation
		var payload []byte

		if err := rows.Scan(
			&op.ID,
			&op.SessionID,
			&op.UserID,
			&op.Type,
			&payload,
			&op.Sequence,
			&op.ClientSequence,
			&op.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if len(payload) > 0 {
			op.Payload = payload
		}
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// MaxSequence returns the highest recorded sequence of a session, or 0
func (r *OperationRepository) MaxSequence(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(MAX(sequence), 0) FROM collab_operations WHERE session_id = $1`

	var seq int64
	if err := r.db.Pool.QueryRow(ctx, query, sessionID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to get max sequence: %w", err)
	}
	return seq, nil
}
