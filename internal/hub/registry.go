package hub

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns the set of live connections and its team and resource indices
type Registry struct {
	mu         sync.RWMutex
	conns      map[uuid.UUID]*Connection
	byTeam     map[uuid.UUID]map[uuid.UUID]*Connection
	byResource map[ResourceKey]map[uuid.UUID]*Connection
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[uuid.UUID]*Connection),
		byTeam:     make(map[uuid.UUID]map[uuid.UUID]*Connection),
		byResource: make(map[ResourceKey]map[uuid.UUID]*Connection),
	}
}

// Register adds a connection to the global set and its groups
func (r *Registry) Register(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; ok {
		return ErrAlreadyRegistered
	}
	r.conns[c.ID] = c

	team, ok := r.byTeam[c.TeamID]
	if !ok {
		team = make(map[uuid.UUID]*Connection)
		r.byTeam[c.TeamID] = team
	}
	team[c.ID] = c

	if c.Resource != nil {
		group, ok := r.byResource[*c.Resource]
		if !ok {
			group = make(map[uuid.UUID]*Connection)
			r.byResource[*c.Resource] = group
		}
		group[c.ID] = c
	}
	return nil
}

// Deregister removes a connection from every index. It reports false when
// the connection was not registered.
func (r *Registry) Deregister(id uuid.UUID) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)

	if team, ok := r.byTeam[c.TeamID]; ok {
		delete(team, id)
		if len(team) == 0 {
			delete(r.byTeam, c.TeamID)
		}
	}

	if c.Resource != nil {
		if group, ok := r.byResource[*c.Resource]; ok {
			delete(group, id)
			if len(group) == 0 {
				delete(r.byResource, *c.Resource)
			}
		}
	}
	return c, true
}

// Get returns a registered connection
func (r *Registry) Get(id uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ForTeam returns the live connections of a team
func (r *Registry) ForTeam(teamID uuid.UUID) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byTeam[teamID])
}

// ForResource returns the live connections subscribed to a resource
func (r *Registry) ForResource(key ResourceKey) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byResource[key])
}

// CountForUser returns how many live connections a user holds in a team
func (r *Registry) CountForUser(userID, teamID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.byTeam[teamID] {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

// All returns every live connection
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.conns)
}

// Len returns the number of live connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Teams returns the number of teams with at least one live connection
func (r *Registry) Teams() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTeam)
}

// Resources returns the number of non-empty resource groups
func (r *Registry) Resources() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byResource)
}

func collect(group map[uuid.UUID]*Connection) []*Connection {
	out := make([]*Connection, 0, len(group))
	for _, c := range group {
		out = append(out, c)
	}
	return out
}
