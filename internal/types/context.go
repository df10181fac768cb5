package types

import (
	"strings"
	"sync"
)

// WorldContext is a consistent snapshot of a world's agents and locations,
// refreshed by the scheduler at the top of every step. Entities hold only
// identifiers; this object serves the lookups.
type WorldContext struct {
	mu        sync.RWMutex
	World     World
	agents    map[string]*Agent
	locations map[string]*Location
}

// NewWorldContext builds a context from a snapshot of rows.
func NewWorldContext(world World, agents []*Agent, locations []*Location) *WorldContext {
	wc := &WorldContext{
		World:     world,
		agents:    make(map[string]*Agent, len(agents)),
		locations: make(map[string]*Location, len(locations)),
	}
	for _, a := range agents {
		wc.agents[a.ID] = a
	}
	for _, l := range locations {
		wc.locations[l.ID] = l
	}
	return wc
}

// AgentByID returns the agent with the given identity, or nil.
func (wc *WorldContext) AgentByID(id string) *Agent {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return wc.agents[id]
}

// AgentByName returns the agent with the given full name, case-insensitive.
func (wc *WorldContext) AgentByName(name string) *Agent {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	for _, a := range wc.agents {
		if strings.EqualFold(a.FullName, name) {
			return a
		}
	}
	return nil
}

// LocationByID returns the location with the given identity, or nil.
func (wc *WorldContext) LocationByID(id string) *Location {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return wc.locations[id]
}

// LocationByName returns the location with the given name, case-insensitive.
func (wc *WorldContext) LocationByName(name string) *Location {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	for _, l := range wc.locations {
		if strings.EqualFold(l.Name, name) {
			return l
		}
	}
	return nil
}

// Agents returns all agents in the snapshot.
func (wc *WorldContext) Agents() []*Agent {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	out := make([]*Agent, 0, len(wc.agents))
	for _, a := range wc.agents {
		out = append(out, a)
	}
	return out
}

// Locations returns all locations in the snapshot.
func (wc *WorldContext) Locations() []*Location {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	out := make([]*Location, 0, len(wc.locations))
	for _, l := range wc.locations {
		out = append(out, l)
	}
	return out
}

// AgentsAt returns the identities of all agents currently at the location.
// This is the witness set for an event published there.
func (wc *WorldContext) AgentsAt(locationID string) []string {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	var ids []string
	for _, a := range wc.agents {
		if a.LocationID == locationID {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// UpdateAgentLocation moves an agent within the snapshot so that witness
// computation inside the same step sees the new position.
func (wc *WorldContext) UpdateAgentLocation(agentID, locationID string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if a, ok := wc.agents[agentID]; ok {
		a.LocationID = locationID
	}
}

// NormalizeTitle canonicalizes a document title for uniqueness checks.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
