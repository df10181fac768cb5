package sim

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"smalltown/internal/bus"
	"smalltown/internal/cognition"
	"smalltown/internal/executor"
	"smalltown/internal/store"
	"smalltown/internal/tools"
	"smalltown/internal/types"
)

type fakeStream struct {
	added     []string
	should    bool
	reflected bool
}

func (f *fakeStream) Add(_ context.Context, description string, kind types.MemoryKind, _ []string) (*types.Memory, error) {
	f.added = append(f.added, description)
	return &types.Memory{ID: types.NewID(), Description: description, Kind: kind}, nil
}

func (f *fakeStream) ShouldReflect(context.Context) (bool, error) { return f.should, nil }

func (f *fakeStream) Reflect(context.Context) ([]*types.Memory, error) {
	f.reflected = true
	f.should = false
	return nil, nil
}

func (f *fakeStream) Recent(_ context.Context, k int) ([]string, error) {
	if len(f.added) > k {
		return f.added[len(f.added)-k:], nil
	}
	return f.added, nil
}

type fakePlanner struct {
	steps []cognition.PlannedStep
	calls int
}

func (f *fakePlanner) Plan(_ context.Context, _ cognition.PlanInput) ([]cognition.PlannedStep, error) {
	f.calls++
	return f.steps, nil
}

type fakeReactor struct {
	decision cognition.Decision
	err      error
	calls    int
	lastIn   cognition.ReactInput
}

func (f *fakeReactor) React(_ context.Context, in cognition.ReactInput) (cognition.Decision, error) {
	f.calls++
	f.lastIn = in
	return f.decision, f.err
}

type fakeSummarizer struct{}

func (fakeSummarizer) RecentActivity(_ context.Context, agentName string, _ []string) (string, error) {
	return agentName + " has no recent activity.", nil
}

type fakeExecutor struct {
	result   executor.Result
	err      error
	calls    int
	lastPlan *types.Plan
}

func (f *fakeExecutor) Step(_ context.Context, _ tools.ToolContext, plan *types.Plan, _ []*types.Event) (executor.Result, error) {
	f.calls++
	f.lastPlan = plan
	return f.result, f.err
}

type runnerFixture struct {
	store    *store.MemoryStore
	world    types.World
	wc       *types.WorldContext
	bus      *bus.Bus
	alice    *types.Agent
	lobby    *types.Location
	confRoom *types.Location

	stream   *fakeStream
	planner  *fakePlanner
	reactor  *fakeReactor
	executor *fakeExecutor
	runner   *AgentRunner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore(3)

	world := types.World{ID: "world-1", Name: "Smalltown"}
	if err := st.CreateWorld(ctx, &world); err != nil {
		t.Fatal(err)
	}

	lobby := &types.Location{ID: "loc-lobby", WorldID: world.ID, Name: "Lobby", ChannelID: "chan-lobby"}
	confRoom := &types.Location{ID: "loc-conf", WorldID: world.ID, Name: "Conference Room"}
	for _, l := range []*types.Location{lobby, confRoom} {
		if err := st.CreateLocation(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	alice := &types.Agent{
		ID:         "agent-alice",
		WorldID:    world.ID,
		FullName:   "Alice Johnson",
		PrivateBio: "a friendly manager",
		LocationID: lobby.ID,
	}
	bob := &types.Agent{
		ID:         "agent-bob",
		WorldID:    world.ID,
		FullName:   "Bob Smith",
		PublicBio:  "an engineer",
		LocationID: lobby.ID,
	}
	for _, a := range []*types.Agent{alice, bob} {
		if err := st.CreateAgent(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	wc := types.NewWorldContext(world, []*types.Agent{alice, bob}, []*types.Location{lobby, confRoom})
	b := bus.New(st, wc, world.ID)

	f := &runnerFixture{
		store:    st,
		world:    world,
		wc:       wc,
		bus:      b,
		alice:    alice,
		lobby:    lobby,
		confRoom: confRoom,
		stream:   &fakeStream{},
		planner:  &fakePlanner{},
		reactor:  &fakeReactor{decision: cognition.DecideMaintain},
		executor: &fakeExecutor{result: executor.Result{Status: types.PlanInProgress}},
	}
	f.runner = NewAgentRunner(alice.ID, st, b, f.stream, f.planner, f.reactor,
		fakeSummarizer{}, f.executor, func(world *types.WorldContext) tools.ToolContext {
			return tools.ToolContext{AgentID: alice.ID, World: world, Store: st, Events: b}
		}, RunnerOptions{})
	return f
}

// addPlan creates a plan row and pushes it onto Alice's queue.
func (f *runnerFixture) addPlan(t *testing.T, description, locationID string) *types.Plan {
	t.Helper()
	p := &types.Plan{
		ID:          types.NewID(),
		AgentID:     f.alice.ID,
		Description: description,
		LocationID:  locationID,
		Status:      types.PlanTodo,
		CreatedAt:   time.Now().UTC(),
	}
	if err := f.store.CreatePlan(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	f.alice.OrderedPlanIDs = append(f.alice.OrderedPlanIDs, p.ID)
	return p
}

func (f *runnerFixture) storedAlice(t *testing.T) *types.Agent {
	t.Helper()
	agents, err := f.store.ListAgents(context.Background(), f.world.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range agents {
		if a.ID == f.alice.ID {
			return a
		}
	}
	t.Fatalf("agent %s not in store", f.alice.ID)
	return nil
}

func TestRunStepMovesTowardPlanLocation(t *testing.T) {
	f := newRunnerFixture(t)
	f.addPlan(t, "Prepare the quarterly review", f.confRoom.ID)

	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	if f.executor.calls != 0 {
		t.Errorf("executor ran %d times during a move step, want 0", f.executor.calls)
	}
	if got := f.storedAlice(t).LocationID; got != f.confRoom.ID {
		t.Errorf("stored location = %s, want %s", got, f.confRoom.ID)
	}
	if got := f.wc.AgentByID(f.alice.ID).LocationID; got != f.confRoom.ID {
		t.Errorf("snapshot location = %s, want %s", got, f.confRoom.ID)
	}

	events, err := f.store.RecentEvents(context.Background(), f.world.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, e := range events {
		if e.Type != types.EventNonMessage {
			t.Errorf("event %q has type %s, want %s", e.Description, e.Type, types.EventNonMessage)
		}
		got = append(got, e.Description)
	}
	sort.Strings(got)
	want := []string{
		"Alice Johnson arrived at the Conference Room",
		"Alice Johnson left the Lobby",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("movement events mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStepExecutesPlanAtCurrentLocation(t *testing.T) {
	f := newRunnerFixture(t)
	p := f.addPlan(t, "Greet everyone in the lobby", f.lobby.ID)

	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	if f.executor.calls != 1 {
		t.Fatalf("executor ran %d times, want 1", f.executor.calls)
	}
	if f.executor.lastPlan.ID != p.ID {
		t.Errorf("executor got plan %s, want %s", f.executor.lastPlan.ID, p.ID)
	}
	if f.executor.lastPlan.Status != types.PlanInProgress {
		t.Errorf("plan status handed to executor = %s, want %s", f.executor.lastPlan.Status, types.PlanInProgress)
	}
	if got := f.storedAlice(t).OrderedPlanIDs; len(got) != 1 || got[0] != p.ID {
		t.Errorf("queue after in-progress step = %v, want [%s]", got, p.ID)
	}
}

func TestRunStepPopsFinishedPlan(t *testing.T) {
	f := newRunnerFixture(t)
	f.addPlan(t, "Greet everyone in the lobby", f.lobby.ID)
	second := f.addPlan(t, "Write up meeting notes", f.lobby.ID)
	f.executor.result = executor.Result{Status: types.PlanDone}

	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	if got := f.storedAlice(t).OrderedPlanIDs; len(got) != 1 || got[0] != second.ID {
		t.Errorf("queue after done = %v, want [%s]", got, second.ID)
	}
}

func TestRunStepReplansWhenQueueEmpty(t *testing.T) {
	f := newRunnerFixture(t)
	f.planner.steps = []cognition.PlannedStep{
		{Description: "Chat with Bob", LocationName: "Lobby", MaxDurationHours: 1},
		{Description: "Review the budget", LocationName: "Conference Room", MaxDurationHours: 2},
	}

	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	if f.planner.calls != 1 {
		t.Fatalf("planner called %d times, want 1", f.planner.calls)
	}
	queue := f.storedAlice(t).OrderedPlanIDs
	if len(queue) != 2 {
		t.Fatalf("queue has %d plans, want 2", len(queue))
	}
	first, err := f.store.GetPlan(context.Background(), queue[0])
	if err != nil {
		t.Fatal(err)
	}
	if first.Description != "Chat with Bob" || first.LocationID != f.lobby.ID {
		t.Errorf("first plan = %q at %s, want %q at %s",
			first.Description, first.LocationID, "Chat with Bob", f.lobby.ID)
	}
	// First plan is at the current location, so the same step executes it.
	if f.executor.calls != 1 {
		t.Errorf("executor ran %d times, want 1", f.executor.calls)
	}
}

func TestRunStepReactorReplan(t *testing.T) {
	f := newRunnerFixture(t)
	old := f.addPlan(t, "Wait quietly", f.lobby.ID)
	f.reactor.decision = cognition.DecideReplan
	f.planner.steps = []cognition.PlannedStep{
		{Description: "Go see what the commotion is about", LocationName: "Lobby", MaxDurationHours: 1},
	}

	if err := f.bus.Add(context.Background(), &types.Event{
		ID:          types.NewID(),
		Type:        types.EventMessage,
		Subtype:     types.MessageAgentToAgent,
		AgentID:     "agent-bob",
		Description: "Bob Smith said to Alice Johnson in the Lobby: 'fire drill!'",
		LocationID:  f.lobby.ID,
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	if f.reactor.calls != 1 {
		t.Fatalf("reactor called %d times, want 1", f.reactor.calls)
	}
	if len(f.reactor.lastIn.NewEvents) != 1 {
		t.Fatalf("reactor saw %d events, want 1", len(f.reactor.lastIn.NewEvents))
	}
	if f.planner.calls != 1 {
		t.Errorf("planner called %d times after replan decision, want 1", f.planner.calls)
	}
	if _, err := f.store.GetPlan(context.Background(), old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old plan lookup error = %v, want ErrNotFound", err)
	}
	if len(f.stream.added) != 1 {
		t.Errorf("recorded %d observations, want 1", len(f.stream.added))
	}
	if got := f.storedAlice(t).OrderedPlanIDs; len(got) != 1 {
		t.Errorf("queue after replan = %v, want one plan", got)
	}
}

func TestRunStepObservationsAdvanceCursor(t *testing.T) {
	f := newRunnerFixture(t)
	f.addPlan(t, "Wait quietly", f.lobby.ID)

	if err := f.bus.Add(context.Background(), &types.Event{
		ID:          types.NewID(),
		Type:        types.EventNonMessage,
		AgentID:     "agent-bob",
		Description: "Bob Smith arrived at the Lobby",
		LocationID:  f.lobby.ID,
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if len(f.stream.added) != 1 || f.stream.added[0] != "Bob Smith arrived at the Lobby" {
		t.Fatalf("observations = %v, want Bob's arrival", f.stream.added)
	}

	// Second step sees nothing new: the cursor advanced.
	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if len(f.stream.added) != 1 {
		t.Errorf("observations after second step = %v, want no additions", f.stream.added)
	}
}

func TestRunStepReflectsWhenDue(t *testing.T) {
	f := newRunnerFixture(t)
	f.addPlan(t, "Wait quietly", f.lobby.ID)
	f.stream.should = true

	if err := f.runner.RunStep(context.Background(), f.wc); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if !f.stream.reflected {
		t.Error("reflection threshold was due but Reflect never ran")
	}
}
