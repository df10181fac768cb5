package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smalltown/internal/llm"
	"smalltown/internal/store"
	"smalltown/internal/tools"
	"smalltown/internal/types"
)

type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) Complete(context.Context, llm.Request) (string, error) {
	c.calls++
	if len(c.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

type recordingSink struct {
	events []*types.Event
}

func (s *recordingSink) Add(_ context.Context, e *types.Event) error {
	s.events = append(s.events, e)
	return nil
}

type flatEngine struct{}

func (flatEngine) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0, 0}, nil }
func (e flatEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}
func (flatEngine) Dimensions() int { return 3 }
func (flatEngine) Name() string    { return "flat" }

type fixture struct {
	ex    *Executor
	tc    tools.ToolContext
	plan  *types.Plan
	sink  *recordingSink
	store store.Store
	agent *types.Agent
}

func newFixture(t *testing.T, responses ...string) *fixture {
	t.Helper()

	world := types.World{ID: types.NewID(), Name: "Smalltown"}
	lobby := &types.Location{ID: types.NewID(), WorldID: world.ID, Name: "Lobby", Description: "An open space."}
	alice := &types.Agent{
		ID: types.NewID(), WorldID: world.ID, FullName: "Alice Example",
		PrivateBio: "friendly", LocationID: lobby.ID,
	}
	wc := types.NewWorldContext(world, []*types.Agent{alice}, []*types.Location{lobby})

	ms := store.NewMemoryStore(0)
	t.Cleanup(func() { ms.Close() })

	sink := &recordingSink{}
	plan := &types.Plan{
		ID:               types.NewID(),
		AgentID:          alice.ID,
		Description:      "Greet everyone in the lobby",
		LocationID:       lobby.ID,
		MaxDurationHours: 0.5,
		StopCondition:    "greeting sent",
		Status:           types.PlanInProgress,
		CreatedAt:        time.Now().UTC(),
	}
	if err := ms.CreatePlan(context.Background(), plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	client := &scriptedClient{responses: responses}
	return &fixture{
		ex:   New(client, tools.NewDefaultRegistry(), ms),
		plan: plan,
		sink: sink,
		tc: tools.ToolContext{
			AgentID: alice.ID,
			World:   wc,
			Store:   ms,
			Events:  sink,
			Embed:   flatEngine{},
		},
		store: ms,
		agent: alice,
	}
}

// Scenario: the model picks speak and the expected message event appears.
func TestStepRunsSpeakTool(t *testing.T) {
	f := newFixture(t, "Action: speak\nAction Input: everyone;'Hello'")

	res, err := f.ex.Step(context.Background(), f.tc, f.plan, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Status != types.PlanInProgress {
		t.Errorf("status = %s, want in_progress", res.Status)
	}
	if res.Tool != "speak" || res.Input != "everyone;'Hello'" {
		t.Errorf("tool/input = %s/%s", res.Tool, res.Input)
	}

	if len(f.sink.events) != 1 {
		t.Fatalf("got %d events, want 1", len(f.sink.events))
	}
	want := "Alice Example said to everyone in the Lobby: 'Hello'"
	if f.sink.events[0].Description != want {
		t.Errorf("event = %q, want %q", f.sink.events[0].Description, want)
	}

	// Scratchpad persisted on the plan row.
	got, err := f.store.GetPlan(context.Background(), f.plan.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(got.Scratchpad) != 1 || got.Scratchpad[0].Action != "speak" {
		t.Errorf("scratchpad = %+v", got.Scratchpad)
	}
}

func TestStepFinalResponseCompletesPlan(t *testing.T) {
	f := newFixture(t, "Final Response: I greeted everyone.")
	f.plan.Scratchpad = []types.ScratchpadEntry{{Action: "speak", Input: "x;'y'", Observation: "ok"}}

	res, err := f.ex.Step(context.Background(), f.tc, f.plan, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Status != types.PlanDone {
		t.Errorf("status = %s, want done", res.Status)
	}

	got, _ := f.store.GetPlan(context.Background(), f.plan.ID)
	if got.Status != types.PlanDone {
		t.Errorf("persisted status = %s", got.Status)
	}
	if got.CompletedAt == nil || got.CompletedAt.Before(got.CreatedAt) {
		t.Error("completed_at not stamped correctly")
	}
	if len(got.Scratchpad) != 0 {
		t.Error("terminal plan kept its scratchpad")
	}
}

func TestStepNeedHelpFails(t *testing.T) {
	f := newFixture(t, "Final Response: Need Help, I cannot do this.")

	res, err := f.ex.Step(context.Background(), f.tc, f.plan, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Status != types.PlanFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
}

// Scenario: unknown tool fails the plan in the same step with no event.
func TestStepUnknownToolFailsWithoutEvent(t *testing.T) {
	f := newFixture(t, "Action: teleport\nAction Input: Conference Room")

	res, err := f.ex.Step(context.Background(), f.tc, f.plan, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Status != types.PlanFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if len(f.sink.events) != 0 {
		t.Errorf("unknown tool emitted %d events", len(f.sink.events))
	}

	got, _ := f.store.GetPlan(context.Background(), f.plan.ID)
	if got.Status != types.PlanFailed || got.CompletedAt == nil {
		t.Errorf("persisted plan = %+v", got)
	}
}

// Scenario: human handoff parks the plan, then a correlated reply resumes it.
func TestStepHumanHandoffSuspendsAndResumes(t *testing.T) {
	f := newFixture(t,
		"Action: human\nAction Input: What's the wifi password?",
		"Final Response: Got the password.",
	)
	ctx := context.Background()

	res, err := f.ex.Step(ctx, f.tc, f.plan, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Status != types.PlanInProgress || res.Tool != "human" {
		t.Errorf("result = %+v", res)
	}
	if len(f.sink.events) != 1 || f.sink.events[0].Subtype != types.MessageAgentToHuman {
		t.Fatalf("events = %+v", f.sink.events)
	}
	correlationID := f.sink.events[0].Metadata[tools.CorrelationKey]
	if correlationID == "" {
		t.Fatal("no correlation id on handoff event")
	}

	// Reload the parked plan; with no reply the step is consumed idle and
	// no model call happens.
	parked, _ := f.store.GetPlan(ctx, f.plan.ID)
	res, err = f.ex.Step(ctx, f.tc, parked, nil)
	if err != nil {
		t.Fatalf("parked Step: %v", err)
	}
	if res.Status != types.PlanInProgress || res.Tool != "" {
		t.Errorf("parked result = %+v", res)
	}

	// The correlated reply resumes the plan with the reply text as the
	// observation.
	reply := &types.Event{
		ID:          types.NewID(),
		Type:        types.EventMessage,
		Subtype:     types.MessageHumanAgentReply,
		Description: "The password is hunter2.",
		LocationID:  f.agent.LocationID,
		Metadata:    map[string]string{tools.CorrelationKey: correlationID},
	}
	res, err = f.ex.Step(ctx, f.tc, parked, []*types.Event{reply})
	if err != nil {
		t.Fatalf("resumed Step: %v", err)
	}
	if res.Status != types.PlanDone {
		t.Errorf("resumed status = %s, want done", res.Status)
	}
}

func TestStepCorrectiveReprompt(t *testing.T) {
	f := newFixture(t,
		"Hmm, let me think about this.",
		"Action: wait\nAction Input: a moment",
	)

	res, err := f.ex.Step(context.Background(), f.tc, f.plan, nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Tool != "wait" {
		t.Errorf("tool = %q, want wait after corrective re-prompt", res.Tool)
	}
}

func TestParseIteration(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		tool  string
		input string
		final string
	}{
		{"action", "Action: speak\nAction Input: everyone;'hi'", "speak", "everyone;'hi'", ""},
		{"action with thought", "Thought: greet.\nAction: speak\nAction Input: everyone;'hi'", "speak", "everyone;'hi'", ""},
		{"final", "Final Response: all done", "", "", "all done"},
		{"final wins", "Final Response: done\nAction: wait\nAction Input: x", "", "", "done\nAction: wait\nAction Input: x"},
		{"input stops at newline", "Action: wait\nAction Input: a bit\nObservation: fake", "wait", "a bit", ""},
		{"garbage", "I am confused", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, final := parseIteration(tt.in)
			if tt.tool != "" {
				if action == nil || action.tool != tt.tool || action.input != tt.input {
					t.Errorf("action = %+v, want %s(%q)", action, tt.tool, tt.input)
				}
				return
			}
			if action != nil {
				t.Errorf("unexpected action %+v", action)
			}
			if final != tt.final {
				t.Errorf("final = %q, want %q", final, tt.final)
			}
		})
	}
}

func TestCompactScratchpad(t *testing.T) {
	f := newFixture(t, "A compact summary of earlier work.")
	f.ex.scratchpadBudget = 100

	for i := 0; i < 10; i++ {
		f.plan.Scratchpad = append(f.plan.Scratchpad, types.ScratchpadEntry{
			Action:      "wait",
			Input:       "a moment",
			Observation: strings.Repeat("waiting ", 10),
		})
	}
	last := f.plan.Scratchpad[len(f.plan.Scratchpad)-1]

	if err := f.ex.compactScratchpad(context.Background(), f.plan); err != nil {
		t.Fatalf("compactScratchpad: %v", err)
	}
	if len(f.plan.Scratchpad) != 3 {
		t.Fatalf("scratchpad = %d entries, want 3", len(f.plan.Scratchpad))
	}
	if f.plan.Scratchpad[0].Action != "recall" {
		t.Errorf("first entry = %+v, want synthetic recall", f.plan.Scratchpad[0])
	}
	if f.plan.Scratchpad[2] != last {
		t.Error("newest entry not preserved verbatim")
	}
}
