package cognition

import (
	"context"
	"fmt"
	"strings"

	"smalltown/internal/llm"
	"smalltown/internal/logging"
)

const (
	// ReflectionQuestions is how many salient questions one reflection
	// pass asks.
	ReflectionQuestions = 3

	// MaxInsights bounds insights extracted per question.
	MaxInsights = 5
)

// Insight is one synthesized conclusion plus the indices (into the memory
// list it was drawn from) of its supporting memories.
type Insight struct {
	Text          string `json:"insight"`
	SourceIndices []int  `json:"memory_indices"`
}

// Reflector drives the two LLM calls of a reflection pass: salient questions
// over recent memories, then insights per question.
type Reflector struct {
	client llm.Client
}

// NewReflector creates a reflector over the given client.
func NewReflector(client llm.Client) *Reflector {
	return &Reflector{client: client}
}

const questionsPrompt = `Here are %s's most recently accessed memories:
%s

Given only this information, what are the %d most salient high-level
questions that can be answered about %s?

Respond with ONLY a JSON array of %d strings.`

// Questions returns exactly ReflectionQuestions salient questions about the
// given memories. Malformed output is re-prompted once.
func (r *Reflector) Questions(ctx context.Context, agentName string, memories []string) ([]string, error) {
	req := llm.Request{
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf(questionsPrompt,
				agentName, numbered(memories), ReflectionQuestions, agentName, ReflectionQuestions),
		}},
		Temperature: 0.5,
	}

	var questions []string
	err := completeJSON(ctx, r.client, req, &questions, func() error {
		if len(questions) < ReflectionQuestions {
			return fmt.Errorf("got %d questions, want %d", len(questions), ReflectionQuestions)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(questions) > ReflectionQuestions {
		questions = questions[:ReflectionQuestions]
	}
	return questions, nil
}

const insightsPrompt = `Question: %s

Relevant memories of %s, numbered:
%s

Extract up to %d high-level insights that answer the question. Each insight
must cite the numbers of the memories that support it.

Respond with ONLY a JSON array:
[{"insight": "...", "memory_indices": [0, 3]}]`

// Insights extracts up to MaxInsights insights answering the question from
// the numbered memories. Indices outside the memory list are dropped; an
// insight left with no valid source is dropped with it.
func (r *Reflector) Insights(ctx context.Context, agentName, question string, memories []string) ([]Insight, error) {
	req := llm.Request{
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf(insightsPrompt,
				question, agentName, numbered(memories), MaxInsights),
		}},
		Temperature: 0.5,
	}

	var insights []Insight
	err := completeJSON(ctx, r.client, req, &insights, func() error {
		if len(insights) == 0 {
			return fmt.Errorf("no insights")
		}
		for i, in := range insights {
			if strings.TrimSpace(in.Text) == "" {
				return fmt.Errorf("insight %d is empty", i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(insights) > MaxInsights {
		logging.Get(logging.CategoryCognition).Warn("Reflector returned %d insights, keeping first %d", len(insights), MaxInsights)
		insights = insights[:MaxInsights]
	}

	kept := insights[:0]
	for _, in := range insights {
		valid := in.SourceIndices[:0]
		for _, idx := range in.SourceIndices {
			if idx >= 0 && idx < len(memories) {
				valid = append(valid, idx)
			}
		}
		in.SourceIndices = valid
		if len(valid) > 0 {
			kept = append(kept, in)
		}
	}
	return kept, nil
}

func numbered(items []string) string {
	var b strings.Builder
	for i, s := range items {
		fmt.Fprintf(&b, "%d. %s\n", i, s)
	}
	return b.String()
}
