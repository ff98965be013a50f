// Package hub is the realtime collaboration core: it tracks live
// connections, derives presence from them, fans frames out to team and
// resource groups and sequences collaborative operations.
package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/collab-hub/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators the hub consumes
type Deps struct {
	Verifier    domain.IdentityVerifier
	Membership  domain.MembershipRepository
	Presence    domain.PresenceRepository
	Sessions    domain.CollabSessionRepository
	Operations  domain.OperationRepository
	Connections domain.ConnectionRecordRepository
}

// ConnectRequest holds the parameters of an upgrade request
type ConnectRequest struct {
	Token        string
	TeamID       string
	ResourceType string
	ResourceID   string
	Location     string
	RemoteAddr   string
}

// Stats is a point-in-time view of the hub
type Stats struct {
	Connections int `json:"connections"`
	Teams       int `json:"teams"`
	Resources   int `json:"resources"`
	Sessions    int `json:"sessions"`
}

// Hub drives connection lifecycles and wires the registry, presence
// tracker, broadcaster and session log together
type Hub struct {
	verifier   domain.IdentityVerifier
	membership domain.MembershipRepository
	records    domain.ConnectionRecordRepository

	registry    *Registry
	presence    *Tracker
	broadcaster *Broadcaster
	sessions    *SessionLog

	now func() time.Time
}

// storeTimeout bounds a single repository call made on a connection's behalf
var storeTimeout = 5 * time.Second

func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, storeTimeout)
}

// New creates a hub
func New(deps Deps) *Hub {
	registry := NewRegistry()
	return &Hub{
		verifier:    deps.Verifier,
		membership:  deps.Membership,
		records:     deps.Connections,
		registry:    registry,
		presence:    NewTracker(registry, deps.Presence),
		broadcaster: NewBroadcaster(registry),
		sessions:    NewSessionLog(deps.Sessions, deps.Operations),
		now:         time.Now,
	}
}

// Registry exposes the connection registry
func (h *Hub) Registry() *Registry { return h.registry }

// Presence exposes the presence tracker
func (h *Hub) Presence() *Tracker { return h.presence }

// Sessions exposes the collaborative session log
func (h *Hub) Sessions() *SessionLog { return h.sessions }

// Stats reports live counts
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Len(),
		Teams:       h.registry.Teams(),
		Resources:   h.registry.Resources(),
		Sessions:    h.sessions.Len(),
	}
}

// Connect authenticates and authorizes an upgrade request. On success the
// returned connection is still Connecting; on failure it is Rejected and no
// hub state was created.
func (h *Hub) Connect(ctx context.Context, req ConnectRequest) (*Connection, error) {
	c := newConnection(h.now())
	c.RemoteAddr = req.RemoteAddr

	if err := h.authorize(ctx, c, req); err != nil {
		if terr := c.transition(StateConnecting, StateRejected); terr != nil {
			log.Error().Err(terr).Msg("Failed to reject connection")
		}
		return c, err
	}
	return c, nil
}

func (h *Hub) authorize(ctx context.Context, c *Connection, req ConnectRequest) error {
	teamID, err := uuid.Parse(req.TeamID)
	if err != nil {
		return fmt.Errorf("%w: invalid teamId", ErrInvalidRequest)
	}
	if (req.ResourceID == "") != (req.ResourceType == "") {
		return fmt.Errorf("%w: resourceId and resourceType must be given together", ErrInvalidRequest)
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrAuthentication)
	}
	identity, err := h.verifier.VerifyToken(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	mctx, cancel := storeContext(ctx)
	active, err := h.membership.IsActiveMember(mctx, teamID, identity.UserID)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !active {
		h.presence.Forget(ctx, identity.UserID, teamID)
		return ErrAuthorization
	}

	c.UserID = identity.UserID
	c.TeamID = teamID
	if req.ResourceID != "" {
		c.Resource = &ResourceKey{TeamID: teamID, Type: req.ResourceType, ID: req.ResourceID}
	}
	c.Location = req.Location
	if c.Location == "" && c.Resource != nil {
		c.Location = c.Resource.Type + ":" + c.Resource.ID
	}
	return nil
}

// Reject abandons a connection that never opened
func (h *Hub) Reject(c *Connection) {
	if err := c.transition(StateConnecting, StateRejected); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID.String()).Msg("Reject ignored")
	}
}

// Open registers an authorized connection, announces it to the team and
// sends it the current team presence. A connection closed while opening is
// never announced or recorded, and Open reports ErrConnectionClosed.
func (h *Hub) Open(ctx context.Context, c *Connection) error {
	if err := c.transition(StateConnecting, StateOpen); err != nil {
		return err
	}
	if err := h.registry.Register(c); err != nil {
		h.abort(c)
		return err
	}

	presence := h.presence.MarkOnline(ctx, c.UserID, c.TeamID, c.Location)

	snapshot := h.presence.Snapshot(ctx, c.TeamID, c.UserID)
	if c.State() == StateOpen {
		if msg, err := newMessage(TypeTeamPresence, c, map[string]any{"users": snapshot}, h.now()); err == nil {
			if err := h.broadcaster.SendTo(c, msg); err != nil {
				log.Warn().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to send team presence")
			}
		}
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() != StateOpen {
		log.Debug().Str("connection_id", c.ID.String()).Str("state", c.State().String()).Msg("Connection closed while opening")
		return ErrConnectionClosed
	}

	if msg, err := newMessage(TypeJoin, c, presenceEvent(c, presence), h.now()); err == nil {
		h.broadcaster.ToTeam(c.TeamID, msg, c.ID)
	}
	c.announced = true

	rec := &domain.ConnectionRecord{
		ConnectionID: c.ID,
		SessionID:    c.SessionID,
		UserID:       c.UserID,
		TeamID:       c.TeamID,
		RemoteAddr:   c.RemoteAddr,
		ConnectedAt:  c.ConnectedAt,
		LastActiveAt: c.LastActivity(),
	}
	if c.Resource != nil {
		rec.ResourceType = c.Resource.Type
		rec.ResourceID = c.Resource.ID
	}
	sctx, cancel := storeContext(ctx)
	defer cancel()
	if err := h.records.Create(sctx, rec); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to create connection record")
	} else {
		c.recorded = true
	}

	log.Info().
		Str("connection_id", c.ID.String()).
		Str("user_id", c.UserID.String()).
		Str("team_id", c.TeamID.String()).
		Int("connections", h.registry.Len()).
		Msg("Connection opened")
	return nil
}

// abort walks a connection that failed to register through Closing to Closed
func (h *Hub) abort(c *Connection) {
	if err := c.transition(StateOpen, StateClosing); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to abort connection")
		return
	}
	if err := c.transition(StateClosing, StateClosed); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to abort connection")
	}
}

// HandleFrame processes one inbound frame. Malformed frames are answered
// with an error frame and the connection stays open.
func (h *Hub) HandleFrame(ctx context.Context, c *Connection, raw []byte) error {
	if c.State() != StateOpen {
		log.Debug().Str("connection_id", c.ID.String()).Str("state", c.State().String()).Msg("Frame dropped")
		return ErrConnectionClosed
	}
	now := h.now()
	c.Touch(now)

	frame, err := parseFrame(raw)
	if err != nil {
		h.sendError(c, "malformed_message", err)
		return nil
	}

	switch frame.Type {
	case TypePresenceUpdate:
		err = h.handlePresenceUpdate(ctx, c, frame)
	case TypeCursorMove, TypeTypingStart, TypeTypingStop:
		err = h.relayToResource(c, frame)
	case TypeTextChange, TypeOperation:
		err = h.handleOperation(ctx, c, frame)
	default:
		log.Debug().Str("connection_id", c.ID.String()).Str("type", string(frame.Type)).Msg("Ignoring unknown frame type")
		return nil
	}

	if err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			h.sendError(c, "malformed_message", err)
			return nil
		}
		h.sendError(c, "unprocessable", err)
	}
	return nil
}

func (h *Hub) handlePresenceUpdate(ctx context.Context, c *Connection, frame *inboundFrame) error {
	var data presenceData
	if err := decodeData(frame.Data, &data); err != nil {
		return err
	}

	presence := h.presence.ApplyUpdate(ctx, c.UserID, c.TeamID, PresenceUpdate{
		Location: data.Location,
		Activity: data.Activity,
	})

	msg, err := newMessage(TypePresenceUpdate, c, presenceEvent(c, presence), h.now())
	if err != nil {
		return err
	}
	h.broadcaster.ToTeam(c.TeamID, msg, c.ID)
	return nil
}

// resourceFor picks the connection's resource, falling back to one named in the frame
func (h *Hub) resourceFor(c *Connection, frame *inboundFrame) (ResourceKey, error) {
	if c.Resource != nil {
		return *c.Resource, nil
	}
	if frame.ResourceID != "" {
		return ResourceKey{TeamID: c.TeamID, Type: frame.ResourceType, ID: frame.ResourceID}, nil
	}
	return ResourceKey{}, fmt.Errorf("%w: %s requires a resource", ErrMalformedMessage, frame.Type)
}

func (h *Hub) relayToResource(c *Connection, frame *inboundFrame) error {
	key, err := h.resourceFor(c, frame)
	if err != nil {
		return err
	}

	msg := &Message{
		Type:         frame.Type,
		UserID:       c.UserID.String(),
		TeamID:       c.TeamID.String(),
		ResourceType: key.Type,
		ResourceID:   key.ID,
		Data:         frame.Data,
		Timestamp:    h.now().UnixMilli(),
	}
	h.broadcaster.ToResource(key, msg, c.ID)
	return nil
}

func (h *Hub) handleOperation(ctx context.Context, c *Connection, frame *inboundFrame) error {
	key, err := h.resourceFor(c, frame)
	if err != nil {
		return err
	}

	var data operationData
	if err := decodeData(frame.Data, &data); err != nil {
		return err
	}
	opType := data.OperationType
	if opType == "" {
		opType = string(frame.Type)
	}
	payload := data.Operation
	if len(payload) == 0 {
		payload = frame.Data
	}

	out := map[string]any{
		"operation_type": opType,
		"operation":      payload,
	}
	if data.SequenceNumber != nil {
		out["client_sequence"] = *data.SequenceNumber
	}

	// Peers receive operations in sequence order: the broadcast runs while
	// the session is still held.
	_, err = h.sessions.AppendThen(ctx, key, c.UserID, opType, payload, data.SequenceNumber, func(op domain.Operation) {
		out["sequence"] = op.Sequence
		out["session_id"] = op.SessionID.String()
		out["operation_id"] = op.ID.String()
		h.relayOperation(c, frame.Type, key, out)
	})
	if err != nil {
		// The operation could not be sequenced; peers still get the edit.
		log.Error().Err(err).Str("resource", key.String()).Msg("Operation not recorded")
		h.relayOperation(c, frame.Type, key, out)
	}
	return nil
}

func (h *Hub) relayOperation(c *Connection, typ MessageType, key ResourceKey, out map[string]any) {
	raw, err := jsonRaw(out)
	if err != nil {
		log.Error().Err(err).Str("resource", key.String()).Msg("Failed to encode operation")
		return
	}
	msg := &Message{
		Type:         typ,
		UserID:       c.UserID.String(),
		TeamID:       c.TeamID.String(),
		ResourceType: key.Type,
		ResourceID:   key.ID,
		Data:         raw,
		Timestamp:    h.now().UnixMilli(),
	}
	h.broadcaster.ToResource(key, msg, c.ID)
}

func (h *Hub) sendError(c *Connection, code string, cause error) {
	msg, err := newMessage(TypeError, c, errorData{Code: code, Message: cause.Error()}, h.now())
	if err != nil {
		return
	}
	if err := h.broadcaster.SendTo(c, msg); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to send error frame")
	}
}

// Close tears a connection down. Only the first caller performs cleanup;
// later calls report false.
func (h *Hub) Close(ctx context.Context, c *Connection, reason string) bool {
	if err := c.transition(StateOpen, StateClosing); err != nil {
		return false
	}

	h.registry.Deregister(c.ID)
	presence, wentOffline := h.presence.MarkOfflineIfLastConnection(ctx, c.UserID, c.TeamID)

	c.lifecycle.Lock()
	if c.recorded {
		sctx, cancel := storeContext(ctx)
		if err := h.records.Delete(sctx, c.ID); err != nil {
			log.Error().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to delete connection record")
		}
		cancel()
	}
	if c.announced {
		if msg, err := newMessage(TypeLeave, c, presenceEvent(c, presence), h.now()); err == nil {
			h.broadcaster.ToTeam(c.TeamID, msg, c.ID)
		}
	}
	c.lifecycle.Unlock()

	if c.Resource != nil && len(h.registry.ForResource(*c.Resource)) == 0 {
		h.sessions.Evict(*c.Resource)
	}

	if err := c.transition(StateClosing, StateClosed); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to finish close")
	}
	if c.sender != nil {
		c.sender.Close(reason)
	}

	log.Info().
		Str("connection_id", c.ID.String()).
		Str("user_id", c.UserID.String()).
		Str("team_id", c.TeamID.String()).
		Str("reason", reason).
		Bool("offline", wentOffline).
		Int("connections", h.registry.Len()).
		Msg("Connection closed")
	return true
}

// Shutdown closes every live connection
func (h *Hub) Shutdown(ctx context.Context) {
	for _, c := range h.registry.All() {
		h.Close(ctx, c, reasonShutdown)
	}
}

func presenceEvent(c *Connection, p domain.Presence) map[string]any {
	return map[string]any{
		"connectionId": c.ID.String(),
		"status":       p.Status,
		"location":     p.Location,
		"activity":     p.Activity,
		"lastSeen":     p.LastSeen,
	}
}
