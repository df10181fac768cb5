package sim

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"smalltown/internal/bus"
	"smalltown/internal/chat"
	"smalltown/internal/logging"
	"smalltown/internal/store"
	"smalltown/internal/tools"
	"smalltown/internal/types"
)

// Scheduler drives all agents forward in loosely synchronized steps. It owns
// the world-context snapshot the bus and runners read; the snapshot refreshes
// from the store at the top of every step.
type Scheduler struct {
	store   store.Store
	gateway chat.Gateway
	world   types.World

	stepDuration time.Duration
	runners      []*AgentRunner

	mu   sync.RWMutex
	wc   *types.WorldContext
	step int
}

// NewScheduler creates a scheduler for one world. Runners attach afterwards
// via AddRunner; the bus attaches via the scheduler's WorldView.
func NewScheduler(s store.Store, gateway chat.Gateway, world types.World, stepDuration time.Duration) *Scheduler {
	if stepDuration <= 0 {
		stepDuration = 2 * time.Minute
	}
	return &Scheduler{
		store:        s,
		gateway:      gateway,
		world:        world,
		stepDuration: stepDuration,
		wc:           types.NewWorldContext(world, nil, nil),
	}
}

// AddRunner registers an agent runner.
func (s *Scheduler) AddRunner(r *AgentRunner) {
	s.runners = append(s.runners, r)
}

// AgentsAt serves witness computation against the current step's snapshot.
// The scheduler itself is the bus's WorldView.
func (s *Scheduler) AgentsAt(locationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wc.AgentsAt(locationID)
}

// Context returns the current step's world snapshot.
func (s *Scheduler) Context() *types.WorldContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wc
}

// Step returns the number of completed steps.
func (s *Scheduler) Step() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// Run advances the world until the context is cancelled. Cancellation is
// honored between steps: the step in flight always finishes, so agent state
// persists consistently before shutdown.
func (s *Scheduler) Run(ctx context.Context, b *bus.Bus) error {
	logging.Sim("Scheduler starting for world %q (%d agents, step %s)",
		s.world.Name, len(s.runners), s.stepDuration)

	for {
		select {
		case <-ctx.Done():
			logging.Sim("Scheduler stopping after %d steps", s.Step())
			return nil
		default:
		}

		started := time.Now()
		if err := s.runStep(ctx, b); err != nil {
			if ctx.Err() != nil {
				logging.Sim("Scheduler stopping after %d steps", s.Step())
				return nil
			}
			// World-level errors (store refresh) are fatal; agent-level
			// errors never reach here.
			return err
		}

		// Pace the world: a step occupies its full duration even when every
		// agent finishes early.
		if remaining := s.stepDuration - time.Since(started); remaining > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(remaining):
			}
		}
	}
}

// runStep executes one world step: refresh the snapshot, inject human
// messages, fan agents out concurrently, advance.
func (s *Scheduler) runStep(ctx context.Context, b *bus.Bus) error {
	started := time.Now()

	if err := s.refreshContext(ctx); err != nil {
		return err
	}
	s.drainInbound(ctx, b)

	world := s.Context()
	g := new(errgroup.Group)
	for _, r := range s.runners {
		r := r
		g.Go(func() error {
			stepCtx, cancel := context.WithTimeout(ctx, s.stepDuration)
			defer cancel()
			if err := r.RunStep(stepCtx, world); err != nil {
				// Agent errors are logged and absorbed; the world
				// advances regardless.
				logging.Get(logging.CategorySim).Error("Agent %s step failed: %v", r.agentID, err)
			}
			return nil
		})
	}
	g.Wait()

	s.mu.Lock()
	s.step++
	step := s.step
	s.mu.Unlock()
	logging.SimDebug("Step %d finished in %s", step, time.Since(started).Round(time.Millisecond))
	return nil
}

// refreshContext rebuilds the world snapshot from the store.
func (s *Scheduler) refreshContext(ctx context.Context) error {
	agents, err := s.store.ListAgents(ctx, s.world.ID)
	if err != nil {
		return err
	}
	locations, err := s.store.ListLocations(ctx, s.world.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.wc = types.NewWorldContext(s.world, agents, locations)
	s.mu.Unlock()
	return nil
}

// drainInbound moves queued human messages onto the bus: replies correlated
// to a pending handoff become human-agent-reply events, everything else
// becomes human-in-channel.
func (s *Scheduler) drainInbound(ctx context.Context, b *bus.Bus) {
	inbound := s.gateway.Inbound()
	for {
		select {
		case msg := <-inbound:
			s.injectInbound(ctx, b, msg)
		default:
			return
		}
	}
}

func (s *Scheduler) injectInbound(ctx context.Context, b *bus.Bus, msg chat.InboundMessage) {
	loc := s.locationByChannel(msg.ChannelID)
	if loc == nil {
		logging.Get(logging.CategorySim).Warn("Inbound message for unknown channel %s dropped", msg.ChannelID)
		return
	}

	e := &types.Event{
		ID:         types.NewID(),
		Type:       types.EventMessage,
		LocationID: loc.ID,
	}
	if msg.CorrelationID != "" {
		e.Subtype = types.MessageHumanAgentReply
		e.Description = msg.Text
		e.Metadata = map[string]string{tools.CorrelationKey: msg.CorrelationID}
	} else {
		e.Subtype = types.MessageHumanInChannel
		e.Description = msg.Sender + " said in the " + loc.Name + ": '" + msg.Text + "'"
	}

	if err := b.Add(ctx, e); err != nil {
		logging.Get(logging.CategorySim).Warn("Failed to inject inbound message: %v", err)
	}
}

func (s *Scheduler) locationByChannel(channelID string) *types.Location {
	if channelID == "" {
		return nil
	}
	for _, l := range s.Context().Locations() {
		if l.ChannelID == channelID {
			return l
		}
	}
	return nil
}
