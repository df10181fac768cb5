package cognition

import (
	"context"
	"fmt"
	"strings"

	"smalltown/internal/llm"
	"smalltown/internal/logging"
)

// MaxPlans bounds how many plans one planning pass may produce.
const MaxPlans = 5

// LocationInfo is one allowed destination presented to the planner.
type LocationInfo struct {
	Name        string
	Description string
}

// PlanInput is everything the planner sees about the agent.
type PlanInput struct {
	AgentName      string
	Bio            string
	Directives     []string
	RecentActivity string
	CurrentPlans   []string
	Locations      []LocationInfo

	// TimeWindow is the horizon being planned, e.g. "24 hours".
	TimeWindow string
}

// PlannedStep is one plan as proposed by the model, locations still by name.
type PlannedStep struct {
	Description      string  `json:"description"`
	LocationName     string  `json:"location"`
	StartTime        string  `json:"start_time"`
	StopCondition    string  `json:"stop_condition"`
	MaxDurationHours float64 `json:"max_duration_hours"`
}

// Planner generates an agent's ordered plan list for a time window. The
// caller replaces the agent's whole plan queue with the result atomically.
type Planner struct {
	client llm.Client
}

// NewPlanner creates a planner over the given client.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{client: client}
}

const plannerSystem = `You are %s.
About you: %s
Your directives: %s`

const plannerPrompt = `Recently: %s

Your current plans:
%s

Places you can go:
%s

Make an ordered list of up to %d plans for the next %s. Each plan needs a
concrete description, one of the listed locations (by exact name), a start
time, a stop condition you could check ("I have spoken with everyone in the
room"), and a maximum duration in hours that fits inside the window.

Respond with ONLY a JSON array:
[{"description": "...", "location": "...", "start_time": "...", "stop_condition": "...", "max_duration_hours": 1.0}]`

// Plan produces up to MaxPlans ordered steps. Output failing validation is
// re-prompted once, then ErrMalformedOutput.
func (p *Planner) Plan(ctx context.Context, in PlanInput) ([]PlannedStep, error) {
	window := in.TimeWindow
	if window == "" {
		window = "24 hours"
	}

	var locs strings.Builder
	for _, l := range in.Locations {
		fmt.Fprintf(&locs, "- %s: %s\n", l.Name, l.Description)
	}
	current := "(none)"
	if len(in.CurrentPlans) > 0 {
		current = "- " + strings.Join(in.CurrentPlans, "\n- ")
	}

	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(plannerSystem,
				in.AgentName, in.Bio, strings.Join(in.Directives, "; "))},
			{Role: llm.RoleUser, Content: fmt.Sprintf(plannerPrompt,
				in.RecentActivity, current, locs.String(), MaxPlans, window)},
		},
		Temperature: 0.7,
	}

	var steps []PlannedStep
	err := completeJSON(ctx, p.client, req, &steps, func() error {
		if len(steps) == 0 {
			return fmt.Errorf("empty plan list")
		}
		known := make(map[string]bool, len(in.Locations))
		for _, l := range in.Locations {
			known[strings.ToLower(l.Name)] = true
		}
		for i, s := range steps {
			if strings.TrimSpace(s.Description) == "" {
				return fmt.Errorf("plan %d has no description", i)
			}
			if !known[strings.ToLower(strings.TrimSpace(s.LocationName))] {
				return fmt.Errorf("plan %d names unknown location %q", i, s.LocationName)
			}
			if s.MaxDurationHours <= 0 {
				return fmt.Errorf("plan %d has non-positive duration", i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(steps) > MaxPlans {
		logging.Get(logging.CategoryCognition).Warn("Planner returned %d plans, keeping first %d", len(steps), MaxPlans)
		steps = steps[:MaxPlans]
	}
	return steps, nil
}
