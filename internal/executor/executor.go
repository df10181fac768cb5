// Package executor runs plans: one bounded reasoning iteration per world
// step, selecting a tool or finishing, with the scratchpad carrying partial
// progress across steps on the plan row.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smalltown/internal/llm"
	"smalltown/internal/logging"
	"smalltown/internal/store"
	"smalltown/internal/tools"
	"smalltown/internal/types"
)

// DefaultScratchpadBudget is the rendered-transcript size (in characters)
// above which the oldest scratchpad entries get summarized away.
const DefaultScratchpadBudget = 8000

// awaitingFmt marks a scratchpad entry whose observation is still pending a
// human reply. The correlation id rides inside the brackets.
const awaitingFmt = "[awaiting human reply %s]"

// Result is the observable outcome of one executor iteration.
type Result struct {
	Status types.PlanStatus

	// Tool and Input are set when the iteration invoked a tool.
	Tool  string
	Input string

	// Output is the final response text or the tool observation.
	Output string
}

// Executor drives plan iterations for any agent. It is stateless between
// calls; all continuation state lives on the plan row.
type Executor struct {
	client   llm.Client
	registry *tools.Registry
	store    store.Store

	scratchpadBudget int
	now              func() time.Time
}

// New creates an executor.
func New(client llm.Client, registry *tools.Registry, s store.Store) *Executor {
	return &Executor{
		client:           client,
		registry:         registry,
		store:            s,
		scratchpadBudget: DefaultScratchpadBudget,
		now:              time.Now,
	}
}

// Step runs exactly one reasoning iteration of the plan for the agent.
// freshEvents are the events the agent witnessed this step; they matter only
// for resuming a parked human handoff. The plan row is persisted before
// returning. Terminal results clear the scratchpad, so a later call with the
// same plan id starts fresh.
func (ex *Executor) Step(ctx context.Context, tc tools.ToolContext, plan *types.Plan, freshEvents []*types.Event) (Result, error) {
	timer := logging.StartTimer(logging.CategoryExecutor, "Step")
	defer timer.Stop()

	agent := tc.World.AgentByID(tc.AgentID)
	if agent == nil {
		return Result{}, fmt.Errorf("agent %s not in world context", tc.AgentID)
	}

	// A parked handoff consumes the step unless its reply arrived.
	if id, waiting := awaitingCorrelation(plan); waiting {
		reply, ok := findReply(freshEvents, id)
		if !ok {
			logging.ExecutorDebug("%s still awaiting human reply %s", agent.FullName, id)
			return Result{Status: types.PlanInProgress}, nil
		}
		last := &plan.Scratchpad[len(plan.Scratchpad)-1]
		last.Observation = reply
		logging.Executor("%s resumed plan %s on human reply", agent.FullName, plan.ID)
	}

	if err := ex.compactScratchpad(ctx, plan); err != nil {
		logging.Get(logging.CategoryExecutor).Warn("Scratchpad compaction failed: %v", err)
	}

	available := ex.registry.ForLocation(tc.World.LocationByID(agent.LocationID))
	prompt := buildPrompt(agent, tc.World, plan, available)

	text, err := ex.complete(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("executor completion failed: %w", err)
	}

	action, final := parseIteration(text)
	if final != "" || action == nil {
		if action == nil && final == "" {
			// Unparseable twice over; take the raw text as the response.
			final = strings.TrimSpace(text)
		}
		status := types.PlanDone
		if strings.Contains(final, "Need Help") {
			status = types.PlanFailed
		}
		return ex.finish(ctx, plan, status, final)
	}

	tool, err := ex.registry.Get(action.tool)
	if err != nil {
		// Unknown tool fails the plan without emitting anything.
		logging.Executor("%s asked for unknown tool %q; plan %s failed", agent.FullName, action.tool, plan.ID)
		return ex.finish(ctx, plan, types.PlanFailed,
			fmt.Sprintf("tool %q does not exist", action.tool))
	}

	observation, err := tool.Execute(ctx, action.input, tc)
	if errors.Is(err, tools.ErrAwaitingHuman) {
		plan.Status = types.PlanInProgress
		plan.Scratchpad = append(plan.Scratchpad, types.ScratchpadEntry{
			Action:      tool.Name,
			Input:       action.input,
			Observation: fmt.Sprintf(awaitingFmt, observation),
		})
		if err := ex.store.UpdatePlan(ctx, plan); err != nil {
			return Result{}, err
		}
		return Result{Status: types.PlanInProgress, Tool: tool.Name, Input: action.input}, nil
	}
	if err != nil {
		observation = fmt.Sprintf("error: %v", err)
	}

	plan.Status = types.PlanInProgress
	plan.Scratchpad = append(plan.Scratchpad, types.ScratchpadEntry{
		Action:      tool.Name,
		Input:       action.input,
		Observation: observation,
	})
	if err := ex.store.UpdatePlan(ctx, plan); err != nil {
		return Result{}, err
	}

	logging.ExecutorDebug("%s ran %s(%q) for plan %s", agent.FullName, tool.Name, action.input, plan.ID)
	return Result{Status: types.PlanInProgress, Tool: tool.Name, Input: action.input, Output: observation}, nil
}

// finish moves the plan to a terminal status, stamps completion, clears the
// scratchpad, and persists.
func (ex *Executor) finish(ctx context.Context, plan *types.Plan, status types.PlanStatus, output string) (Result, error) {
	now := ex.now().UTC()
	plan.Status = status
	plan.CompletedAt = &now
	plan.Scratchpad = nil
	if err := ex.store.UpdatePlan(ctx, plan); err != nil {
		return Result{}, err
	}
	logging.Executor("Plan %s finished: %s", plan.ID, status)
	return Result{Status: status, Output: output}, nil
}

// complete asks for an iteration, re-prompting once when the response fits
// neither recognized shape.
func (ex *Executor) complete(ctx context.Context, prompt string) (string, error) {
	req := llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: 0.2,
		Stop:        []string{"Observation:"},
	}
	text, err := ex.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if action, final := parseIteration(text); action != nil || final != "" {
		return text, nil
	}

	req.Messages = append(req.Messages,
		llm.Message{Role: llm.RoleAssistant, Content: text},
		llm.Message{Role: llm.RoleUser, Content: "Respond with either \"Final Response: <text>\" or \"Action: <tool>\" followed by \"Action Input: <input>\". Nothing else."},
	)
	return ex.client.Complete(ctx, req)
}

// awaitingCorrelation reports whether the plan's last scratchpad entry is a
// parked human handoff, returning its correlation id.
func awaitingCorrelation(plan *types.Plan) (string, bool) {
	if len(plan.Scratchpad) == 0 {
		return "", false
	}
	obs := plan.Scratchpad[len(plan.Scratchpad)-1].Observation
	if !strings.HasPrefix(obs, "[awaiting human reply ") || !strings.HasSuffix(obs, "]") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(obs, "[awaiting human reply "), "]"), true
}

// findReply scans events for the human reply correlated with id.
func findReply(events []*types.Event, id string) (string, bool) {
	for _, e := range events {
		if e.Subtype == types.MessageHumanAgentReply && e.Metadata[tools.CorrelationKey] == id {
			return e.Description, true
		}
	}
	return "", false
}
