package cognition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"smalltown/internal/llm"
	"smalltown/internal/logging"
)

// ImportanceScorer rates how poignant a memory is to its owner on a 1-10
// scale. 1 is mundane (brushing teeth), 10 is life-changing (a breakup).
type ImportanceScorer struct {
	client llm.Client
}

// NewImportanceScorer creates a scorer over the given client.
func NewImportanceScorer(client llm.Client) *ImportanceScorer {
	return &ImportanceScorer{client: client}
}

const importancePrompt = `You rate how important a memory is to %s.
About them: %s

Memory: %s

On a scale of 1 to 10, where 1 is purely mundane (e.g., waiting, small talk)
and 10 is extremely poignant (e.g., a confrontation, a major discovery), rate
the likely importance of this memory to them.

Respond with a single integer between 1 and 10. Nothing else.`

// Score returns the importance of the description to the named agent.
// Malformed output gets one corrective re-prompt, then ErrMalformedOutput.
func (s *ImportanceScorer) Score(ctx context.Context, agentName, agentBio, description string) (int, error) {
	req := llm.Request{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf(importancePrompt, agentName, agentBio, description),
		}},
		Temperature: 0,
		MaxTokens:   8,
	}

	text, err := s.client.Complete(ctx, req)
	if err != nil {
		return 0, err
	}
	if n, ok := parseImportance(text); ok {
		return n, nil
	}

	logging.Get(logging.CategoryCognition).Warn("Importance score unparseable (%q), re-prompting", text)
	req.Messages = append(req.Messages,
		llm.Message{Role: llm.RoleAssistant, Content: text},
		llm.Message{Role: llm.RoleUser, Content: "That was not a single integer between 1 and 10. Respond with only the integer."},
	)
	text, err = s.client.Complete(ctx, req)
	if err != nil {
		return 0, err
	}
	if n, ok := parseImportance(text); ok {
		return n, nil
	}
	return 0, fmt.Errorf("%w: importance score %q", ErrMalformedOutput, text)
}

// parseImportance pulls the first integer token out of the response and
// checks the range.
func parseImportance(text string) (int, bool) {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool {
		return r < '0' || r > '9'
	})
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 || n > 10 {
		return 0, false
	}
	return n, true
}
