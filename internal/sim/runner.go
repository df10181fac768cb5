// Package sim drives the world forward: one AgentRunner per agent executing
// the observe → reflect? → react → move-or-execute loop, and a Scheduler
// fanning all runners out concurrently in discrete steps.
package sim

import (
	"context"
	"fmt"
	"time"

	"smalltown/internal/bus"
	"smalltown/internal/cognition"
	"smalltown/internal/executor"
	"smalltown/internal/logging"
	"smalltown/internal/store"
	"smalltown/internal/tools"
	"smalltown/internal/types"
)

// MemoryStream is the slice of the agent's memory the runner drives.
// memory.Stream satisfies it.
type MemoryStream interface {
	Add(ctx context.Context, description string, kind types.MemoryKind, related []string) (*types.Memory, error)
	ShouldReflect(ctx context.Context) (bool, error)
	Reflect(ctx context.Context) ([]*types.Memory, error)
	Recent(ctx context.Context, k int) ([]string, error)
}

// Planner generates a fresh ordered plan list. cognition.Planner satisfies
// it.
type Planner interface {
	Plan(ctx context.Context, in cognition.PlanInput) ([]cognition.PlannedStep, error)
}

// Reactor judges whether new events warrant replanning. cognition.Reactor
// satisfies it.
type Reactor interface {
	React(ctx context.Context, in cognition.ReactInput) (cognition.Decision, error)
}

// Summarizer produces the recent-activity line for prompts.
// cognition.Summarizer satisfies it.
type Summarizer interface {
	RecentActivity(ctx context.Context, agentName string, descriptions []string) (string, error)
}

// PlanExecutor runs one plan iteration. executor.Executor satisfies it.
type PlanExecutor interface {
	Step(ctx context.Context, tc tools.ToolContext, plan *types.Plan, freshEvents []*types.Event) (executor.Result, error)
}

// RunnerOptions tunes an AgentRunner. The zero value uses defaults.
type RunnerOptions struct {
	// SummaryCount is how many recent memories feed the activity summary.
	SummaryCount int

	// PlanningWindow is the horizon handed to the planner, e.g. "24 hours".
	PlanningWindow string
}

// AgentRunner advances one agent by one step at a time.
type AgentRunner struct {
	agentID string

	store      store.Store
	bus        *bus.Bus
	stream     MemoryStream
	planner    Planner
	reactor    Reactor
	summarizer Summarizer
	executor   PlanExecutor
	toolCtx    func(world *types.WorldContext) tools.ToolContext

	summaryCount int
	planWindow   string
}

// NewAgentRunner wires a runner for one agent. toolCtx builds the per-step
// tool context bundle from the step's world snapshot.
func NewAgentRunner(agentID string, s store.Store, b *bus.Bus, stream MemoryStream,
	planner Planner, reactor Reactor, summarizer Summarizer, ex PlanExecutor,
	toolCtx func(world *types.WorldContext) tools.ToolContext, opts RunnerOptions) *AgentRunner {
	if opts.SummaryCount <= 0 {
		opts.SummaryCount = 20
	}
	return &AgentRunner{
		agentID:      agentID,
		store:        s,
		bus:          b,
		stream:       stream,
		planner:      planner,
		reactor:      reactor,
		summarizer:   summarizer,
		executor:     ex,
		toolCtx:      toolCtx,
		summaryCount: opts.SummaryCount,
		planWindow:   opts.PlanningWindow,
	}
}

// RunStep advances the agent through one world step:
//  1. pull events at the current location since the last check,
//  2. record each as an observation memory,
//  3. reflect if the importance threshold has been crossed,
//  4. react to the new events, replanning if warranted,
//  5. plan if the queue is empty,
//  6. move toward the next plan's location, or execute one iteration.
//
// The agent row is persisted before returning.
func (r *AgentRunner) RunStep(ctx context.Context, world *types.WorldContext) error {
	agent := world.AgentByID(r.agentID)
	if agent == nil {
		return fmt.Errorf("agent %s missing from world snapshot", r.agentID)
	}
	timer := logging.StartTimer(logging.CategorySim, "RunStep."+agent.FullName)
	defer timer.Stop()

	// 1. Fresh events at the agent's location.
	events, lastRefresh, err := r.bus.Events(ctx, bus.Filter{
		LocationID: agent.LocationID,
		After:      agent.LastCheckedEventsAt,
	})
	if err != nil {
		return fmt.Errorf("failed to pull events: %w", err)
	}
	agent.LastCheckedEventsAt = lastRefresh

	// 2. Observations.
	for _, e := range events {
		if _, err := r.stream.Add(ctx, e.Description, types.MemoryObservation, nil); err != nil {
			return fmt.Errorf("failed to record observation: %w", err)
		}
	}

	// 3. Reflection.
	if should, err := r.stream.ShouldReflect(ctx); err != nil {
		return err
	} else if should {
		if _, err := r.stream.Reflect(ctx); err != nil {
			logging.Get(logging.CategorySim).Warn("%s reflection failed: %v", agent.FullName, err)
		}
	}

	// Recent-activity summary, computed once per step.
	recent, err := r.stream.Recent(ctx, r.summaryCount)
	if err != nil {
		return err
	}
	summary, err := r.summarizer.RecentActivity(ctx, agent.FullName, recent)
	if err != nil {
		return fmt.Errorf("failed to summarize recent activity: %w", err)
	}

	plans, err := r.currentPlans(ctx, agent)
	if err != nil {
		return err
	}

	// 4. React to what just happened.
	if len(events) > 0 && len(plans) > 0 {
		decision, err := r.reactor.React(ctx, cognition.ReactInput{
			AgentName:      agent.FullName,
			Bio:            agent.PrivateBio,
			Directives:     agent.Directives,
			RecentActivity: summary,
			CurrentPlans:   planDescriptions(plans),
			NewEvents:      eventDescriptions(events),
		})
		if err != nil {
			logging.Get(logging.CategorySim).Warn("%s reactor failed, maintaining plans: %v", agent.FullName, err)
		} else if decision == cognition.DecideReplan {
			logging.Sim("%s is replanning", agent.FullName)
			plans = nil
		}
	}

	// 5. Plan when the queue is empty (first step, replan, or all done).
	if len(plans) == 0 {
		plans, err = r.replan(ctx, world, agent, summary)
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			return r.store.UpdateAgent(ctx, agent)
		}
	}

	current := plans[0]

	// 6. Move or execute, never both in one step.
	if current.LocationID != agent.LocationID {
		if err := r.move(ctx, world, agent, current.LocationID); err != nil {
			return err
		}
		return r.store.UpdateAgent(ctx, agent)
	}

	if current.Status == types.PlanTodo {
		current.Status = types.PlanInProgress
	}
	res, err := r.executor.Step(ctx, r.toolCtx(world), current, events)
	if err != nil {
		return fmt.Errorf("executor step failed: %w", err)
	}
	if res.Status == types.PlanDone || res.Status == types.PlanFailed {
		agent.OrderedPlanIDs = agent.OrderedPlanIDs[1:]
		logging.Sim("%s finished plan %q: %s", agent.FullName, current.Description, res.Status)
	}

	return r.store.UpdateAgent(ctx, agent)
}

// currentPlans resolves the agent's plan queue, dropping ids whose rows have
// reached a terminal status.
func (r *AgentRunner) currentPlans(ctx context.Context, agent *types.Agent) ([]*types.Plan, error) {
	var plans []*types.Plan
	var liveIDs []string
	for _, id := range agent.OrderedPlanIDs {
		p, err := r.store.GetPlan(ctx, id)
		if err != nil {
			logging.Get(logging.CategorySim).Warn("Plan %s missing, dropping from queue: %v", id, err)
			continue
		}
		if p.Terminal() {
			continue
		}
		plans = append(plans, p)
		liveIDs = append(liveIDs, id)
	}
	agent.OrderedPlanIDs = liveIDs
	return plans, nil
}

// replan asks the planner for a fresh list and atomically replaces the
// agent's queue: old rows deleted, new rows inserted, queue swapped.
func (r *AgentRunner) replan(ctx context.Context, world *types.WorldContext, agent *types.Agent, summary string) ([]*types.Plan, error) {
	var locs []cognition.LocationInfo
	for _, l := range world.Locations() {
		if len(l.AllowedAgentIDs) > 0 && !contains(l.AllowedAgentIDs, agent.ID) {
			continue
		}
		locs = append(locs, cognition.LocationInfo{Name: l.Name, Description: l.Description})
	}

	existing, err := r.currentPlans(ctx, agent)
	if err != nil {
		return nil, err
	}

	steps, err := r.planner.Plan(ctx, cognition.PlanInput{
		AgentName:      agent.FullName,
		Bio:            agent.PrivateBio,
		Directives:     agent.Directives,
		RecentActivity: summary,
		CurrentPlans:   planDescriptions(existing),
		Locations:      locs,
		TimeWindow:     r.planWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("planner failed: %w", err)
	}

	if len(agent.OrderedPlanIDs) > 0 {
		if err := r.store.DeletePlans(ctx, agent.OrderedPlanIDs); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	plans := make([]*types.Plan, 0, len(steps))
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		loc := world.LocationByName(s.LocationName)
		if loc == nil {
			continue
		}
		p := &types.Plan{
			ID:               types.NewID(),
			AgentID:          agent.ID,
			Description:      s.Description,
			LocationID:       loc.ID,
			MaxDurationHours: s.MaxDurationHours,
			StopCondition:    s.StopCondition,
			Status:           types.PlanTodo,
			CreatedAt:        now,
		}
		if err := r.store.CreatePlan(ctx, p); err != nil {
			return nil, err
		}
		plans = append(plans, p)
		ids = append(ids, p.ID)
	}
	agent.OrderedPlanIDs = ids
	logging.Sim("%s made %d plans", agent.FullName, len(plans))
	return plans, nil
}

// move walks the agent to the target location, publishing the departure at
// the old location and the arrival at the new one. No tool runs in a move
// step.
func (r *AgentRunner) move(ctx context.Context, world *types.WorldContext, agent *types.Agent, targetID string) error {
	from := world.LocationByID(agent.LocationID)
	to := world.LocationByID(targetID)
	if to == nil {
		return fmt.Errorf("target location %s missing from world snapshot", targetID)
	}

	if from != nil {
		departure := &types.Event{
			ID:          types.NewID(),
			Type:        types.EventNonMessage,
			AgentID:     agent.ID,
			Description: fmt.Sprintf("%s left the %s", agent.FullName, from.Name),
			LocationID:  from.ID,
		}
		if err := r.bus.Add(ctx, departure); err != nil {
			return fmt.Errorf("failed to publish departure: %w", err)
		}
	}

	agent.LocationID = to.ID
	world.UpdateAgentLocation(agent.ID, to.ID)

	arrival := &types.Event{
		ID:          types.NewID(),
		Type:        types.EventNonMessage,
		AgentID:     agent.ID,
		Description: fmt.Sprintf("%s arrived at the %s", agent.FullName, to.Name),
		LocationID:  to.ID,
	}
	if err := r.bus.Add(ctx, arrival); err != nil {
		return fmt.Errorf("failed to publish arrival: %w", err)
	}

	logging.Sim("%s moved to the %s", agent.FullName, to.Name)
	return nil
}

func planDescriptions(plans []*types.Plan) []string {
	out := make([]string, len(plans))
	for i, p := range plans {
		out[i] = p.Description
	}
	return out
}

func eventDescriptions(events []*types.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Description
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
