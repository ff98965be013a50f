package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type liveSession struct {
	// ready is closed once the session is loaded or loadErr is set
	ready   chan struct{}
	loadErr error

	mu           sync.Mutex
	evicted      bool
	session      domain.CollabSession
	participants map[uuid.UUID]struct{}
}

func (ls *liveSession) loaded() bool {
	select {
	case <-ls.ready:
		return ls.loadErr == nil
	default:
		return false
	}
}

// SessionLog owns collaborative sessions and assigns operation sequence
// numbers. Each session serializes its appends, so stored order equals
// submission order. Store reads happen outside the log-wide lock, so a slow
// load of one resource never stalls another.
type SessionLog struct {
	sessions   domain.CollabSessionRepository
	operations domain.OperationRepository
	now        func() time.Time

	mu   sync.Mutex
	live map[ResourceKey]*liveSession
}

// NewSessionLog creates a session log
func NewSessionLog(sessions domain.CollabSessionRepository, operations domain.OperationRepository) *SessionLog {
	return &SessionLog{
		sessions:   sessions,
		operations: operations,
		now:        time.Now,
		live:       make(map[ResourceKey]*liveSession),
	}
}

// GetOrCreate returns the session of a resource, loading it from the store
// or creating it on first use. A store read failure is returned and nothing
// is cached, so the next call retries.
func (l *SessionLog) GetOrCreate(ctx context.Context, key ResourceKey, initiator uuid.UUID) (domain.CollabSession, error) {
	ls, err := l.lock(ctx, key, initiator)
	if err != nil {
		return domain.CollabSession{}, err
	}
	defer ls.mu.Unlock()
	return copySession(ls.session), nil
}

func (l *SessionLog) load(ctx context.Context, key ResourceKey, initiator uuid.UUID) (*liveSession, error) {
	l.mu.Lock()
	ls, ok := l.live[key]
	if !ok {
		ls = &liveSession{
			ready:        make(chan struct{}),
			participants: make(map[uuid.UUID]struct{}),
		}
		l.live[key] = ls
	}
	l.mu.Unlock()

	if ok {
		select {
		case <-ls.ready:
			if ls.loadErr != nil {
				return nil, ls.loadErr
			}
			return ls, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	sctx, cancel := storeContext(ctx)
	err := l.fill(sctx, ls, key, initiator)
	cancel()
	if err != nil {
		ls.loadErr = err
		l.mu.Lock()
		if l.live[key] == ls {
			delete(l.live, key)
		}
		l.mu.Unlock()
	}
	close(ls.ready)

	if err != nil {
		return nil, err
	}
	return ls, nil
}

// fill populates a session that is not yet visible to other callers
func (l *SessionLog) fill(ctx context.Context, ls *liveSession, key ResourceKey, initiator uuid.UUID) error {
	stored, err := l.sessions.GetByResource(ctx, key.TeamID, key.Type, key.ID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	if stored != nil {
		ls.session = *stored
		maxSeq, err := l.operations.MaxSequence(ctx, stored.ID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", stored.ID.String()).Msg("Failed to read max sequence, using session counter")
		} else if maxSeq > ls.session.LastSequence {
			ls.session.LastSequence = maxSeq
		}
		for _, p := range stored.Participants {
			ls.participants[p] = struct{}{}
		}
		return nil
	}

	now := l.now()
	ls.session = domain.CollabSession{
		ID:           uuid.New(),
		TeamID:       key.TeamID,
		ResourceType: key.Type,
		ResourceID:   key.ID,
		Participants: []uuid.UUID{initiator},
		State:        map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	ls.participants[initiator] = struct{}{}

	if err := l.sessions.Upsert(ctx, &ls.session); err != nil {
		log.Error().Err(err).Str("resource", key.String()).Msg("Failed to persist new session")
	}
	log.Info().Str("session_id", ls.session.ID.String()).Str("resource", key.String()).Msg("Collaborative session created")
	return nil
}

// lock loads a session and locks it, reloading if it was evicted meanwhile
func (l *SessionLog) lock(ctx context.Context, key ResourceKey, initiator uuid.UUID) (*liveSession, error) {
	for {
		ls, err := l.load(ctx, key, initiator)
		if err != nil {
			return nil, err
		}
		ls.mu.Lock()
		if !ls.evicted {
			return ls, nil
		}
		ls.mu.Unlock()
	}
}

// Append assigns the next sequence number to an operation and records it.
// Persistence failures are logged; the returned operation is still valid
// for broadcasting.
func (l *SessionLog) Append(ctx context.Context, key ResourceKey, userID uuid.UUID, opType string, payload json.RawMessage, clientSeq *int64) (*domain.Operation, error) {
	return l.AppendThen(ctx, key, userID, opType, payload, clientSeq, nil)
}

// AppendThen is Append with a publish step that runs before the session is
// released, so whatever publish emits is ordered by sequence.
func (l *SessionLog) AppendThen(ctx context.Context, key ResourceKey, userID uuid.UUID, opType string, payload json.RawMessage, clientSeq *int64, publish func(domain.Operation)) (*domain.Operation, error) {
	ls, err := l.lock(ctx, key, userID)
	if err != nil {
		return nil, err
	}
	defer ls.mu.Unlock()

	now := l.now()
	ls.session.LastSequence++
	op := &domain.Operation{
		ID:             uuid.New(),
		SessionID:      ls.session.ID,
		UserID:         userID,
		Type:           opType,
		Payload:        payload,
		Sequence:       ls.session.LastSequence,
		ClientSequence: clientSeq,
		AppliedAt:      now,
	}

	if _, ok := ls.participants[userID]; !ok {
		ls.participants[userID] = struct{}{}
		ls.session.Participants = append(ls.session.Participants, userID)
	}
	if ls.session.State == nil {
		ls.session.State = map[string]any{}
	}
	ls.session.State["last_operation"] = map[string]any{
		"type":     opType,
		"user_id":  userID.String(),
		"sequence": op.Sequence,
	}
	ls.session.State["last_activity"] = now.UTC().Format(time.RFC3339Nano)
	ls.session.UpdatedAt = now

	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := l.operations.Append(sctx, op); err != nil {
		log.Error().Err(err).
			Str("session_id", op.SessionID.String()).
			Int64("sequence", op.Sequence).
			Msg("Failed to persist operation")
	}
	if err := l.sessions.Upsert(sctx, &ls.session); err != nil {
		log.Error().Err(err).Str("session_id", op.SessionID.String()).Msg("Failed to persist session")
	}

	if publish != nil {
		publish(*op)
	}
	return op, nil
}

// Session returns the cached session of a resource
func (l *SessionLog) Session(key ResourceKey) (domain.CollabSession, bool) {
	l.mu.Lock()
	ls, ok := l.live[key]
	l.mu.Unlock()
	if !ok || !ls.loaded() {
		return domain.CollabSession{}, false
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.evicted {
		return domain.CollabSession{}, false
	}
	return copySession(ls.session), true
}

// Evict drops the cached session of a resource. The session stays in the
// store and the next Append reloads it.
func (l *SessionLog) Evict(key ResourceKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ls, ok := l.live[key]
	if !ok || !ls.loaded() {
		return false
	}
	ls.mu.Lock()
	ls.evicted = true
	id := ls.session.ID
	ls.mu.Unlock()
	delete(l.live, key)

	log.Debug().Str("session_id", id.String()).Str("resource", key.String()).Msg("Collaborative session evicted")
	return true
}

// Len returns the number of sessions held in memory
func (l *SessionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, ls := range l.live {
		if ls.loaded() {
			n++
		}
	}
	return n
}

func copySession(s domain.CollabSession) domain.CollabSession {
	s.Participants = append([]uuid.UUID(nil), s.Participants...)
	if s.State != nil {
		state := make(map[string]any, len(s.State))
		for k, v := range s.State {
			state[k] = v
		}
		s.State = state
	}
	return s
}
