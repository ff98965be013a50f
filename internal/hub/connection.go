package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ResourceKey identifies a resource group. The team is part of the key so
// resource membership always implies team membership.
type ResourceKey struct {
	TeamID uuid.UUID
	Type   string
	ID     string
}

func (k ResourceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.TeamID, k.Type, k.ID)
}

// Sender is the outbound side of a transport
type Sender interface {
	// Send enqueues a serialized frame without blocking
	Send(msg []byte) error
	// Close shuts the transport down; it must be safe to call more than once
	Close(reason string)
}

// Connection is one live client connection owned by the Registry
type Connection struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	TeamID      uuid.UUID
	SessionID   uuid.UUID
	Resource    *ResourceKey
	Location    string
	RemoteAddr  string
	ConnectedAt time.Time

	sender       Sender
	lastActivity atomic.Int64
	state        atomic.Int32

	// lifecycle orders the announce and record steps of Open against Close
	lifecycle sync.Mutex
	announced bool
	recorded  bool
}

func newConnection(now time.Time) *Connection {
	c := &Connection{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		ConnectedAt: now,
	}
	c.lastActivity.Store(now.UnixNano())
	c.state.Store(int32(StateConnecting))
	return c
}

// Attach binds the transport used for outbound frames
func (c *Connection) Attach(sender Sender) {
	c.sender = sender
}

// State returns the current lifecycle state
func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) transition(from, to State) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s -> %s from %s", ErrIllegalTransition, from, to, c.State())
	}
	return nil
}

// Touch records inbound activity; the timestamp never moves backwards
func (c *Connection) Touch(at time.Time) {
	n := at.UnixNano()
	for {
		cur := c.lastActivity.Load()
		if n <= cur || c.lastActivity.CompareAndSwap(cur, n) {
			return
		}
	}
}

// LastActivity returns the time of the last inbound message
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Send enqueues a serialized frame on the connection's transport
func (c *Connection) Send(msg []byte) error {
	if c.sender == nil {
		return ErrConnectionClosed
	}
	return c.sender.Send(msg)
}
