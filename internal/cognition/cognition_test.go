package cognition

import (
	"context"
	"errors"
	"testing"

	"smalltown/internal/llm"
)

// scriptedClient returns canned responses in order and records requests.
type scriptedClient struct {
	responses []string
	calls     []llm.Request
}

func (c *scriptedClient) Complete(_ context.Context, req llm.Request) (string, error) {
	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"bare array", `[1, 2]`, `[1, 2]`},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around array", `Sure! ["x"] hope that helps`, `["x"]`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"brace inside string", `{"a": "}"}`, `{"a": "}"}`},
		{"array before object", `[{"a": 1}]`, `[{"a": 1}]`},
		{"no json", "I refuse.", ""},
		{"unclosed", `{"a": 1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestImportanceScore(t *testing.T) {
	ctx := context.Background()

	client := &scriptedClient{responses: []string{"7"}}
	s := NewImportanceScorer(client)
	n, err := s.Score(ctx, "Alice", "friendly", "met a stranger")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if n != 7 {
		t.Errorf("score = %d, want 7", n)
	}
}

func TestImportanceScoreCorrectiveReparse(t *testing.T) {
	ctx := context.Background()

	// First response is prose; the corrective re-prompt recovers.
	client := &scriptedClient{responses: []string{"I'd say it is quite important.", "Importance: 9"}}
	s := NewImportanceScorer(client)
	n, err := s.Score(ctx, "Alice", "friendly", "a confrontation")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if n != 9 {
		t.Errorf("score = %d, want 9", n)
	}
	if len(client.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(client.calls))
	}

	// Both responses malformed: fail with ErrMalformedOutput. Out-of-range
	// integers count as malformed.
	client = &scriptedClient{responses: []string{"eleven", "42"}}
	s = NewImportanceScorer(client)
	if _, err := s.Score(ctx, "Alice", "friendly", "x"); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestPlannerValidatesAndTruncates(t *testing.T) {
	ctx := context.Background()
	in := PlanInput{
		AgentName: "Alice",
		Bio:       "curious",
		Locations: []LocationInfo{{Name: "Lobby", Description: "open space"}},
	}

	client := &scriptedClient{responses: []string{`[
		{"description": "p1", "location": "Lobby", "start_time": "09:00", "stop_condition": "done", "max_duration_hours": 1},
		{"description": "p2", "location": "lobby", "start_time": "10:00", "stop_condition": "done", "max_duration_hours": 1},
		{"description": "p3", "location": "Lobby", "start_time": "11:00", "stop_condition": "done", "max_duration_hours": 1},
		{"description": "p4", "location": "Lobby", "start_time": "12:00", "stop_condition": "done", "max_duration_hours": 1},
		{"description": "p5", "location": "Lobby", "start_time": "13:00", "stop_condition": "done", "max_duration_hours": 1},
		{"description": "p6", "location": "Lobby", "start_time": "14:00", "stop_condition": "done", "max_duration_hours": 1}
	]`}}
	steps, err := NewPlanner(client).Plan(ctx, in)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(steps) != MaxPlans {
		t.Errorf("got %d steps, want %d", len(steps), MaxPlans)
	}
	if steps[0].Description != "p1" {
		t.Errorf("order lost: first = %q", steps[0].Description)
	}

	// Unknown location is malformed; corrective re-prompt fixes it.
	client = &scriptedClient{responses: []string{
		`[{"description": "p", "location": "Moon", "start_time": "09:00", "stop_condition": "done", "max_duration_hours": 1}]`,
		`[{"description": "p", "location": "Lobby", "start_time": "09:00", "stop_condition": "done", "max_duration_hours": 1}]`,
	}}
	steps, err = NewPlanner(client).Plan(ctx, in)
	if err != nil {
		t.Fatalf("Plan after reparse: %v", err)
	}
	if len(steps) != 1 || steps[0].LocationName != "Lobby" {
		t.Errorf("steps = %+v", steps)
	}

	// Twice malformed fails.
	client = &scriptedClient{responses: []string{"no plans today", "still no"}}
	if _, err := NewPlanner(client).Plan(ctx, in); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestReactorDecision(t *testing.T) {
	ctx := context.Background()
	in := ReactInput{AgentName: "Alice", NewEvents: []string{"Bob shouted"}}

	client := &scriptedClient{responses: []string{`{"decision": "replan"}`}}
	d, err := NewReactor(client).React(ctx, in)
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if d != DecideReplan {
		t.Errorf("decision = %q, want replan", d)
	}

	// Anything outside the two allowed values is malformed.
	client = &scriptedClient{responses: []string{`{"decision": "panic"}`, `{"decision": "maintain_plans"}`}}
	d, err = NewReactor(client).React(ctx, in)
	if err != nil {
		t.Fatalf("React after reparse: %v", err)
	}
	if d != DecideMaintain {
		t.Errorf("decision = %q, want maintain_plans", d)
	}
}

func TestReflectorQuestions(t *testing.T) {
	ctx := context.Background()
	mems := []string{"m0", "m1", "m2"}

	client := &scriptedClient{responses: []string{`["q1", "q2", "q3", "q4"]`}}
	qs, err := NewReflector(client).Questions(ctx, "Alice", mems)
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(qs) != ReflectionQuestions {
		t.Errorf("got %d questions, want %d", len(qs), ReflectionQuestions)
	}

	client = &scriptedClient{responses: []string{`["only one"]`, `["a", "b"]`}}
	if _, err := NewReflector(client).Questions(ctx, "Alice", mems); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestReflectorInsightsFiltersIndices(t *testing.T) {
	ctx := context.Background()
	mems := []string{"m0", "m1"}

	client := &scriptedClient{responses: []string{`[
		{"insight": "good", "memory_indices": [0, 1, 9]},
		{"insight": "unsupported", "memory_indices": [5]}
	]`}}
	insights, err := NewReflector(client).Insights(ctx, "Alice", "q", mems)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if len(insights) != 1 {
		t.Fatalf("got %d insights, want 1 (unsupported dropped)", len(insights))
	}
	if got := insights[0].SourceIndices; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("indices = %v, want [0 1]", got)
	}
}

func TestSummarizerEmpty(t *testing.T) {
	s := NewSummarizer(&scriptedClient{})
	got, err := s.RecentActivity(context.Background(), "Alice", nil)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if got != "Alice has no recent activity." {
		t.Errorf("got %q", got)
	}
}
