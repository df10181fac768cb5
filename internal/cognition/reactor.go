package cognition

import (
	"context"
	"fmt"
	"strings"

	"smalltown/internal/llm"
)

// Decision is the reactor's verdict on new events.
type Decision string

const (
	// DecideReplan means the events invalidate the current plans.
	DecideReplan Decision = "replan"

	// DecideMaintain means the agent should carry on.
	DecideMaintain Decision = "maintain_plans"
)

// ReactInput is what the reactor sees when judging new events.
type ReactInput struct {
	AgentName      string
	Bio            string
	Directives     []string
	RecentActivity string
	CurrentPlans   []string
	NewEvents      []string
}

// Reactor decides whether freshly witnessed events warrant replanning.
type Reactor struct {
	client llm.Client
}

// NewReactor creates a reactor over the given client.
func NewReactor(client llm.Client) *Reactor {
	return &Reactor{client: client}
}

const reactorPrompt = `Recently: %s

Your current plans:
%s

You just witnessed:
%s

Should you throw out your plans and make new ones, or carry on? Replan only
if an event genuinely changes what you should be doing.

Respond with ONLY a JSON object: {"decision": "replan"} or {"decision": "maintain_plans"}`

// React returns exactly one of DecideReplan or DecideMaintain. Malformed
// output is re-prompted once, then ErrMalformedOutput.
func (r *Reactor) React(ctx context.Context, in ReactInput) (Decision, error) {
	current := "(none)"
	if len(in.CurrentPlans) > 0 {
		current = "- " + strings.Join(in.CurrentPlans, "\n- ")
	}

	req := llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(plannerSystem,
				in.AgentName, in.Bio, strings.Join(in.Directives, "; "))},
			{Role: llm.RoleUser, Content: fmt.Sprintf(reactorPrompt,
				in.RecentActivity, current, "- "+strings.Join(in.NewEvents, "\n- "))},
		},
		Temperature: 0,
	}

	var out struct {
		Decision Decision `json:"decision"`
	}
	err := completeJSON(ctx, r.client, req, &out, func() error {
		if out.Decision != DecideReplan && out.Decision != DecideMaintain {
			return fmt.Errorf("decision %q is not replan or maintain_plans", out.Decision)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.Decision, nil
}
