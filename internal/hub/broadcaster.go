package hub

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Broadcaster fans frames out to registry groups
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over a registry
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// ToTeam delivers msg to every connection of a team except exclude.
// It returns the number of successful deliveries.
func (b *Broadcaster) ToTeam(teamID uuid.UUID, msg *Message, exclude uuid.UUID) int {
	return b.deliver(b.registry.ForTeam(teamID), msg, exclude)
}

// ToResource delivers msg to every subscriber of a resource except exclude
func (b *Broadcaster) ToResource(key ResourceKey, msg *Message, exclude uuid.UUID) int {
	return b.deliver(b.registry.ForResource(key), msg, exclude)
}

// SendTo delivers msg to a single connection
func (b *Broadcaster) SendTo(c *Connection, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (b *Broadcaster) deliver(conns []*Connection, msg *Message, exclude uuid.UUID) int {
	if len(conns) == 0 {
		return 0
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to marshal broadcast")
		return 0
	}

	delivered := 0
	for _, c := range conns {
		if c.ID == exclude {
			continue
		}
		if err := c.Send(data); err != nil {
			log.Warn().Err(err).
				Str("connection_id", c.ID.String()).
				Str("user_id", c.UserID.String()).
				Str("type", string(msg.Type)).
				Msg("Broadcast delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}
