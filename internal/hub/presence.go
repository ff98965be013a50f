package hub

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type presenceKey struct {
	userID uuid.UUID
	teamID uuid.UUID
}

type presenceEntry struct {
	mu     sync.Mutex
	record domain.Presence
}

// PresenceUpdate carries client-supplied presence fields
type PresenceUpdate struct {
	Location *string
	Activity map[string]any
}

// Tracker maintains per (user, team) presence. Status is derived from the
// registry's connection count and is never taken from a client.
type Tracker struct {
	registry *Registry
	store    domain.PresenceRepository
	now      func() time.Time

	mu      sync.Mutex
	entries map[presenceKey]*presenceEntry
}

// NewTracker creates a presence tracker
func NewTracker(registry *Registry, store domain.PresenceRepository) *Tracker {
	return &Tracker{
		registry: registry,
		store:    store,
		now:      time.Now,
		entries:  make(map[presenceKey]*presenceEntry),
	}
}

func (t *Tracker) entry(userID, teamID uuid.UUID) *presenceEntry {
	key := presenceKey{userID: userID, teamID: teamID}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		e = &presenceEntry{record: domain.Presence{
			UserID: userID,
			TeamID: teamID,
			Status: domain.PresenceOffline,
		}}
		t.entries[key] = e
	}
	return e
}

func (t *Tracker) liveStatus(userID, teamID uuid.UUID) domain.PresenceStatus {
	if t.registry.CountForUser(userID, teamID) > 0 {
		return domain.PresenceOnline
	}
	return domain.PresenceOffline
}

// MarkOnline records that the user has a live connection in the team
func (t *Tracker) MarkOnline(ctx context.Context, userID, teamID uuid.UUID, location string) domain.Presence {
	e := t.entry(userID, teamID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	e.record.Status = t.liveStatus(userID, teamID)
	if location != "" {
		e.record.Location = location
	}
	e.record.LastSeen = now
	e.record.UpdatedAt = now

	t.persist(ctx, e.record)
	return copyPresence(e.record)
}

// MarkOfflineIfLastConnection recomputes status after a connection left.
// It reports true only for the call that flipped the user to offline.
func (t *Tracker) MarkOfflineIfLastConnection(ctx context.Context, userID, teamID uuid.UUID) (domain.Presence, bool) {
	e := t.entry(userID, teamID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.liveStatus(userID, teamID) == domain.PresenceOnline || e.record.Status == domain.PresenceOffline {
		return copyPresence(e.record), false
	}

	now := t.now()
	e.record.Status = domain.PresenceOffline
	e.record.LastSeen = now
	e.record.UpdatedAt = now

	t.persist(ctx, e.record)
	return copyPresence(e.record), true
}

// ApplyUpdate merges location and activity from a client
func (t *Tracker) ApplyUpdate(ctx context.Context, userID, teamID uuid.UUID, update PresenceUpdate) domain.Presence {
	e := t.entry(userID, teamID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	if update.Location != nil {
		e.record.Location = *update.Location
	}
	if len(update.Activity) > 0 {
		merged := make(map[string]any, len(e.record.Activity)+len(update.Activity))
		for k, v := range e.record.Activity {
			merged[k] = v
		}
		for k, v := range update.Activity {
			merged[k] = v
		}
		e.record.Activity = merged
	}
	e.record.Status = t.liveStatus(userID, teamID)
	e.record.LastSeen = now
	e.record.UpdatedAt = now

	t.persist(ctx, e.record)
	return copyPresence(e.record)
}

// Forget drops any presence left for a user who may no longer join the team
func (t *Tracker) Forget(ctx context.Context, userID, teamID uuid.UUID) {
	t.mu.Lock()
	delete(t.entries, presenceKey{userID: userID, teamID: teamID})
	t.mu.Unlock()

	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := t.store.Delete(sctx, userID, teamID); err != nil {
		log.Warn().Err(err).
			Str("user_id", userID.String()).
			Str("team_id", teamID.String()).
			Msg("Failed to delete stale presence")
	}
}

// Get returns the in-memory presence of a user
func (t *Tracker) Get(userID, teamID uuid.UUID) (domain.Presence, bool) {
	t.mu.Lock()
	e, ok := t.entries[presenceKey{userID: userID, teamID: teamID}]
	t.mu.Unlock()
	if !ok {
		return domain.Presence{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copyPresence(e.record), true
}

// Snapshot lists team presence, excluding one user. Stored records are
// preferred; on a read failure the in-memory view is used. Status always
// reflects live connections.
func (t *Tracker) Snapshot(ctx context.Context, teamID, excludeUserID uuid.UUID) []domain.Presence {
	sctx, cancel := storeContext(ctx)
	records, err := t.store.ListByTeam(sctx, teamID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("team_id", teamID.String()).Msg("Presence store unavailable, using in-memory snapshot")
		records = t.memorySnapshot(teamID)
	}

	out := make([]domain.Presence, 0, len(records))
	for _, p := range records {
		if p.UserID == excludeUserID {
			continue
		}
		p.Status = t.liveStatus(p.UserID, teamID)
		out = append(out, p)
	}
	return out
}

func (t *Tracker) memorySnapshot(teamID uuid.UUID) []domain.Presence {
	t.mu.Lock()
	entries := make([]*presenceEntry, 0)
	for key, e := range t.entries {
		if key.teamID == teamID {
			entries = append(entries, e)
		}
	}
	t.mu.Unlock()

	out := make([]domain.Presence, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, copyPresence(e.record))
		e.mu.Unlock()
	}
	return out
}

func (t *Tracker) persist(ctx context.Context, p domain.Presence) {
	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := t.store.Upsert(sctx, &p); err != nil {
		log.Error().Err(err).
			Str("user_id", p.UserID.String()).
			Str("team_id", p.TeamID.String()).
			Str("status", string(p.Status)).
			Msg("Failed to persist presence")
	}
}

func copyPresence(p domain.Presence) domain.Presence {
	if p.Activity != nil {
		activity := make(map[string]any, len(p.Activity))
		for k, v := range p.Activity {
			activity[k] = v
		}
		p.Activity = activity
	}
	return p
}
