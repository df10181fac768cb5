package cognition

import (
	"context"
	"fmt"
	"strings"

	"smalltown/internal/llm"
)

// Summarizer condenses an agent's recent memories into a short first-person
// activity summary for the planner and reactor prompts.
type Summarizer struct {
	client llm.Client
}

// NewSummarizer creates a summarizer over the given client.
func NewSummarizer(client llm.Client) *Summarizer {
	return &Summarizer{client: client}
}

const summaryPrompt = `Summarize what %s has been up to recently, based on
their latest memories, newest last. Write 2-4 sentences in the third person.
Do not invent details that the memories do not support.

Memories:
%s`

// RecentActivity summarizes the given memory descriptions for the agent.
// Returns a fixed placeholder when there is nothing to summarize.
func (s *Summarizer) RecentActivity(ctx context.Context, agentName string, descriptions []string) (string, error) {
	if len(descriptions) == 0 {
		return fmt.Sprintf("%s has no recent activity.", agentName), nil
	}

	var b strings.Builder
	for _, d := range descriptions {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteString("\n")
	}

	text, err := s.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf(summaryPrompt, agentName, b.String()),
		}},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
