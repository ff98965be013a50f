package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
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
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var payload sql.NullString
	if len(op.Payload) > 0 {
		payload = sql.NullString{String: string(op.Payload), Valid: true}
	}
	var clientSeq sql.NullInt64
	if op.ClientSequence != nil {
		clientSeq = sql.NullInt64{Int64: *op.ClientSequence, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO collab_operations (id, session_id, user_id, type, payload, sequence, client_sequence, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.ID.String(),
		op.SessionID.String(),
		op.UserID.String(),
		op.Type,
		payload,
		op.Sequence,
		clientSeq,
		toNanos(op.AppliedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE collab_sessions
		SET last_sequence = MAX(last_sequence, ?), updated_at = ?
		WHERE id = ?
	`, op.Sequence, toNanos(op.AppliedAt), op.SessionID.String())
	if err != nil {
		return fmt.Errorf("failed to advance session sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSince retrieves operations with sequence greater than afterSequence, oldest first
func (r *OperationRepository) ListSince(ctx context.Context, sessionID uuid.UUID, afterSequence int64, limit int) ([]domain.Operation, error) {
	query := `
		SELECT id, session_id, user_id, type, payload, sequence, client_sequence, applied_at
		FROM collab_operations
		WHERE session_id = ? AND sequence > ?
		ORDER BY sequence ASC
		LIMIT ?
	`

	rows, err := r.db.conn.QueryContext(ctx, query, sessionID.String(), afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.Operation
	for rows.Next() {
		var op domain.Operation
		var payload sql.NullString
		var clientSeq sql.NullInt64
		var appliedAt int64

		if err := rows.Scan(
			&op.ID,
			&op.SessionID,
			&op.UserID,
			&op.Type,
			&payload,
			&op.Sequence,
			&clientSeq,
			&appliedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		if clientSeq.Valid {
			v := clientSeq.Int64
			op.ClientSequence = &v
		}
		op.AppliedAt = fromNanos(appliedAt)
		ops = append(ops, op)
	}

	return ops, rows.Err()
}

// MaxSequence returns the highest recorded sequence of a session, or 0
func (r *OperationRepository) MaxSequence(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(MAX(sequence), 0) FROM collab_operations WHERE session_id = ?`

	var seq int64
	if err := r.db.conn.QueryRowContext(ctx, query, sessionID.String()).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to get max sequence: %w", err)
	}
	return seq, nil
}
