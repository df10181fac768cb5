// Package types defines the shared data model for the smalltown world:
// worlds, locations, agents, memories, plans, events and documents.
//
// Entities reference each other by identity only. Cross-entity lookups go
// through WorldContext, which the scheduler refreshes once per step.
package types

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh canonical UUID string.
func NewID() string {
	return uuid.NewString()
}

// World is the root entity. It owns locations and agents.
type World struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Location is a named place agents can occupy. Locations are static for the
// lifetime of a run.
type Location struct {
	ID          string `json:"id"`
	WorldID     string `json:"world_id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// ChannelID binds the location to a chat channel. Empty means no channel.
	ChannelID string `json:"channel_id,omitempty"`

	// AvailableTools lists tool names usable at this location, in addition
	// to worldwide tools.
	AvailableTools []string `json:"available_tools"`

	// AllowedAgentIDs restricts which agents may occupy the location.
	AllowedAgentIDs []string `json:"allowed_agent_ids"`
}

// Agent is an autonomous character.
type Agent struct {
	ID       string `json:"id"`
	WorldID  string `json:"world_id"`
	FullName string `json:"full_name"`

	// PrivateBio is only ever rendered into the agent's own prompts.
	PrivateBio string `json:"private_bio"`

	// PublicBio is what other agents see in the directory.
	PublicBio string `json:"public_bio"`

	// Directives are free-form goals that steer planning.
	Directives []string `json:"directives"`

	LocationID string `json:"location_id"`

	// OrderedPlanIDs is the agent's plan queue, first element next.
	OrderedPlanIDs []string `json:"ordered_plan_ids"`

	// ChannelToken authorizes the agent to post to location channels.
	ChannelToken string `json:"channel_token,omitempty"`

	// LastCheckedEventsAt is the high-watermark for events the agent has
	// already observed.
	LastCheckedEventsAt time.Time `json:"last_checked_events_at"`
}

// MemoryKind distinguishes witnessed observations from synthesized
// reflections.
type MemoryKind string

const (
	MemoryObservation MemoryKind = "observation"
	MemoryReflection  MemoryKind = "reflection"
)

// Memory is an owned, embedded, importance-scored record.
// Invariants: 1 <= Importance <= 10, LastAccessedAt >= CreatedAt, and the
// embedding dimensionality matches the run's embedding engine.
type Memory struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	Kind        MemoryKind `json:"kind"`
	Description string     `json:"description"`
	Embedding   []float32  `json:"embedding"`
	Importance  int        `json:"importance"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// RelatedMemoryIDs links a reflection to the memories it was drawn from.
	// Empty for observations.
	RelatedMemoryIDs []string `json:"related_memory_ids,omitempty"`
}

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

const (
	PlanTodo       PlanStatus = "todo"
	PlanInProgress PlanStatus = "in_progress"
	PlanDone       PlanStatus = "done"
	PlanFailed     PlanStatus = "failed"
)

// ScratchpadEntry is one (action, observation) pair from an executor
// iteration. The accumulated entries carry a plan across steps.
type ScratchpadEntry struct {
	Action      string `json:"action"`
	Input       string `json:"input"`
	Observation string `json:"observation"`
}

// Plan is an agent's intended activity. Ordering among plans is external,
// held by Agent.OrderedPlanIDs.
type Plan struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Description string `json:"description"`
	LocationID  string `json:"location_id"`

	// MaxDurationHours bounds how long the agent should pursue the plan.
	MaxDurationHours float64 `json:"max_duration_hours"`

	// StopCondition is free-form predicate text the executor reasons over.
	StopCondition string `json:"stop_condition"`

	Status     PlanStatus        `json:"status"`
	Scratchpad []ScratchpadEntry `json:"scratchpad,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the plan has reached a final status.
func (p *Plan) Terminal() bool {
	return p.Status == PlanDone || p.Status == PlanFailed
}

// EventType partitions events into chat messages and everything else.
type EventType string

const (
	EventMessage    EventType = "message"
	EventNonMessage EventType = "non_message"
)

// MessageSubtype refines message events by who is talking to whom.
type MessageSubtype string

const (
	MessageAgentToAgent    MessageSubtype = "agent_to_agent"
	MessageAgentToHuman    MessageSubtype = "agent_to_human"
	MessageHumanAgentReply MessageSubtype = "human_agent_reply"
	MessageHumanInChannel  MessageSubtype = "human_in_channel"
)

// Event is an immutable, witnessed, location-scoped record of something that
// happened. Once published an event never mutates.
type Event struct {
	ID        string    `json:"id"`
	WorldID   string    `json:"world_id"`
	Timestamp time.Time `json:"timestamp"`

	Type    EventType      `json:"type"`
	Subtype MessageSubtype `json:"subtype,omitempty"`

	// AgentID is the emitting agent. Required unless the event came from a
	// human (human_agent_reply, human_in_channel), who has no agent identity.
	AgentID string `json:"agent_id,omitempty"`

	Description string `json:"description"`
	LocationID  string `json:"location_id"`

	// WitnessIDs are the agents present at LocationID when the event was
	// published.
	WitnessIDs []string `json:"witness_ids"`

	// Metadata is an opaque blob, e.g. the correlation id for a human
	// handoff round-trip.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Witnessed reports whether the given agent saw the event.
func (e *Event) Witnessed(agentID string) bool {
	for _, id := range e.WitnessIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// Document is agent-authored content stored outside memory and retrieved via
// tools. Unique per (AgentID, NormalizedTitle).
type Document struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	Title           string    `json:"title"`
	NormalizedTitle string    `json:"normalized_title"`
	Content         string    `json:"content"`
	Embedding       []float32 `json:"embedding"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
