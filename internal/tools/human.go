package tools

import (
	"context"
	"fmt"

	"smalltown/internal/logging"
	"smalltown/internal/types"
)

// CorrelationKey is the event metadata key tying a human-handoff question to
// its eventual reply.
const CorrelationKey = "correlation_id"

// HumanTool surfaces a question to the humans on the location's channel and
// suspends the calling plan. The emitted event carries a correlation id; the
// executor resumes the plan when a human-agent-reply event with the same id
// arrives, feeding the reply text in as the tool observation.
func HumanTool() *Tool {
	return &Tool{
		Name:            "human",
		Description:     "Ask a human for help and wait for their answer. Input: your question.",
		Worldwide:       true,
		RequiresContext: true,
		Execute:         executeHuman,
	}
}

func executeHuman(ctx context.Context, input string, tc ToolContext) (string, error) {
	question := input
	if question == "" {
		return "", fmt.Errorf("%w: human tool needs a question", ErrBadInput)
	}

	agent := tc.World.AgentByID(tc.AgentID)
	if agent == nil {
		return "", fmt.Errorf("agent %s not in world context", tc.AgentID)
	}
	loc := tc.World.LocationByID(agent.LocationID)
	if loc == nil {
		return "", fmt.Errorf("location %s not in world context", agent.LocationID)
	}

	correlationID := types.NewID()
	e := &types.Event{
		ID:          types.NewID(),
		Type:        types.EventMessage,
		Subtype:     types.MessageAgentToHuman,
		AgentID:     agent.ID,
		Description: fmt.Sprintf("%s asked a human in the %s: '%s'", agent.FullName, loc.Name, question),
		LocationID:  loc.ID,
		Metadata:    map[string]string{CorrelationKey: correlationID},
	}
	if err := tc.Events.Add(ctx, e); err != nil {
		return "", fmt.Errorf("failed to publish human request: %w", err)
	}

	if loc.ChannelID != "" && tc.Chat != nil {
		line := fmt.Sprintf("**%s** needs a human: %s (reply ref %s)", agent.FullName, question, correlationID)
		if err := tc.Chat.Send(ctx, loc.ChannelID, agent.ChannelToken, line); err != nil {
			logging.Get(logging.CategoryTools).Warn("Human request channel forward failed: %v", err)
		}
	}

	logging.Tools("%s is awaiting a human reply (%s)", agent.FullName, correlationID)
	// The correlation id rides back on the error so the executor can park
	// the plan against it.
	return correlationID, ErrAwaitingHuman
}
