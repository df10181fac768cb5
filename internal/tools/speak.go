package tools

import (
	"context"
	"fmt"
	"strings"

	"smalltown/internal/logging"
	"smalltown/internal/types"
)

// SpeakTool emits a message event at the speaker's location and, when the
// location is bound to a chat channel, forwards the line to the gateway.
func SpeakTool() *Tool {
	return &Tool{
		Name:            "speak",
		Description:     "Say something out loud at your location. Input format: recipient;'message' where recipient is a person's full name or the word everyone. Semicolons are not allowed inside the message.",
		Worldwide:       true,
		RequiresContext: true,
		Execute:         executeSpeak,
	}
}

// parseSpeakInput enforces the grammar recipient;'content'. Semicolons in
// the content are forbidden, so exactly one semicolon may appear.
func parseSpeakInput(input string) (recipient, content string, err error) {
	parts := strings.Split(input, ";")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: speak input must be recipient;'message' with no other semicolons", ErrBadInput)
	}
	recipient = strings.TrimSpace(parts[0])
	if recipient == "" {
		return "", "", fmt.Errorf("%w: speak input has no recipient", ErrBadInput)
	}

	content = strings.TrimSpace(parts[1])
	content = strings.TrimPrefix(content, "'")
	content = strings.TrimSuffix(content, "'")
	if strings.TrimSpace(content) == "" {
		return "", "", fmt.Errorf("%w: speak input has no message", ErrBadInput)
	}
	return recipient, content, nil
}

func executeSpeak(ctx context.Context, input string, tc ToolContext) (string, error) {
	recipient, content, err := parseSpeakInput(input)
	if err != nil {
		return "", err
	}

	speaker := tc.World.AgentByID(tc.AgentID)
	if speaker == nil {
		return "", fmt.Errorf("speaker %s not in world context", tc.AgentID)
	}
	loc := tc.World.LocationByID(speaker.LocationID)
	if loc == nil {
		return "", fmt.Errorf("location %s not in world context", speaker.LocationID)
	}

	description := fmt.Sprintf("%s said to %s in the %s: '%s'",
		speaker.FullName, recipient, loc.Name, content)

	e := &types.Event{
		ID:          types.NewID(),
		Type:        types.EventMessage,
		Subtype:     types.MessageAgentToAgent,
		AgentID:     speaker.ID,
		Description: description,
		LocationID:  loc.ID,
	}
	if err := tc.Events.Add(ctx, e); err != nil {
		return "", fmt.Errorf("failed to publish speech: %w", err)
	}

	if loc.ChannelID != "" && tc.Chat != nil {
		line := fmt.Sprintf("**%s**: %s", speaker.FullName, content)
		if err := tc.Chat.Send(ctx, loc.ChannelID, speaker.ChannelToken, line); err != nil {
			// Speech already happened in-world; channel delivery is best
			// effort.
			logging.Get(logging.CategoryTools).Warn("Channel forward failed for %s: %v", loc.ChannelID, err)
		}
	}

	logging.ToolsDebug("%s spoke at %s", speaker.FullName, loc.Name)
	return fmt.Sprintf("You said to %s: '%s'", recipient, content), nil
}
