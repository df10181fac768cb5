package executor

import (
	"context"
	"fmt"
	"strings"

	"smalltown/internal/llm"
	"smalltown/internal/tools"
	"smalltown/internal/types"
)

// parsedAction is one parsed tool invocation.
type parsedAction struct {
	tool  string
	input string
}

// buildPrompt renders the iteration prompt: who the agent is, where it is,
// who is nearby, what it is trying to do, what it has done so far, and what
// tools it can use.
func buildPrompt(agent *types.Agent, world *types.WorldContext, plan *types.Plan, available []*tools.Tool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.\nAbout you: %s\n\n", agent.FullName, agent.PrivateBio)

	loc := world.LocationByID(agent.LocationID)
	if loc != nil {
		fmt.Fprintf(&b, "You are in the %s. %s\n", loc.Name, loc.Description)
		var nearby []string
		for _, id := range world.AgentsAt(loc.ID) {
			if id == agent.ID {
				continue
			}
			if other := world.AgentByID(id); other != nil {
				nearby = append(nearby, other.FullName)
			}
		}
		if len(nearby) > 0 {
			fmt.Fprintf(&b, "Also here: %s.\n", strings.Join(nearby, ", "))
		} else {
			b.WriteString("Nobody else is here.\n")
		}
	}

	fmt.Fprintf(&b, "\nYour task: %s\nStop when: %s\n", plan.Description, plan.StopCondition)

	b.WriteString("\nTools you can use:\n")
	for _, t := range available {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}

	b.WriteString(`
Work one step at a time. Respond in exactly one of these two forms:

Action: <tool name>
Action Input: <input for the tool>

or, when the task is complete (or you are stuck and Need Help):

Final Response: <what you accomplished>
`)

	if len(plan.Scratchpad) > 0 {
		b.WriteString("\nSo far:\n")
		b.WriteString(renderScratchpad(plan.Scratchpad))
	}

	return b.String()
}

func renderScratchpad(entries []types.ScratchpadEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "Action: %s\nAction Input: %s\nObservation: %s\n", e.Action, e.Input, e.Observation)
	}
	return b.String()
}

// parseIteration splits a completion into a tool action or a final response.
// Exactly one of the returns is meaningful; both empty means unparseable.
func parseIteration(text string) (*parsedAction, string) {
	if idx := strings.Index(text, "Final Response:"); idx != -1 {
		return nil, strings.TrimSpace(text[idx+len("Final Response:"):])
	}

	actionIdx := strings.Index(text, "Action:")
	inputIdx := strings.Index(text, "Action Input:")
	if actionIdx == -1 || inputIdx == -1 || inputIdx < actionIdx {
		return nil, ""
	}

	tool := strings.TrimSpace(text[actionIdx+len("Action:") : inputIdx])
	input := strings.TrimSpace(text[inputIdx+len("Action Input:"):])
	// Drop anything the model rambled after the input line.
	if nl := strings.Index(input, "\n"); nl != -1 {
		input = strings.TrimSpace(input[:nl])
	}
	if tool == "" {
		return nil, ""
	}
	return &parsedAction{tool: tool, input: input}, ""
}

// compactScratchpad summarizes the oldest entries into one synthetic
// observation when the rendered transcript exceeds the budget. The two most
// recent entries always survive verbatim.
func (ex *Executor) compactScratchpad(ctx context.Context, plan *types.Plan) error {
	if len(plan.Scratchpad) <= 3 || len(renderScratchpad(plan.Scratchpad)) <= ex.scratchpadBudget {
		return nil
	}

	keep := plan.Scratchpad[len(plan.Scratchpad)-2:]
	old := plan.Scratchpad[:len(plan.Scratchpad)-2]

	text, err := ex.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf(
				"Condense this activity log into one short paragraph, keeping every fact needed to continue the task:\n\n%s",
				renderScratchpad(old)),
		}},
		Temperature: 0.2,
	})
	if err != nil {
		return err
	}

	compacted := make([]types.ScratchpadEntry, 0, 3)
	compacted = append(compacted, types.ScratchpadEntry{
		Action:      "recall",
		Input:       "earlier progress",
		Observation: strings.TrimSpace(text),
	})
	compacted = append(compacted, keep...)
	plan.Scratchpad = compacted
	return nil
}
