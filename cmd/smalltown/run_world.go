package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"smalltown/internal/bus"
	"smalltown/internal/chat"
	"smalltown/internal/cognition"
	"smalltown/internal/embedding"
	"smalltown/internal/executor"
	"smalltown/internal/llm"
	"smalltown/internal/memory"
	"smalltown/internal/sim"
	"smalltown/internal/store"
	"smalltown/internal/tools"
	"smalltown/internal/types"
)

var runWorldName string

var runWorldCmd = &cobra.Command{
	Use:   "run-world",
	Short: "Run a world until interrupted",
	Long: `Loads the named world and steps every agent concurrently until the
process receives SIGINT or SIGTERM. The step in flight always finishes, so
agent state is consistent on disk after shutdown.`,
	RunE: runWorld,
}

func init() {
	runWorldCmd.Flags().StringVar(&runWorldName, "name", "", "world name (defaults to the configured world)")
}

func runWorld(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := runWorldName
	if name == "" {
		name = cfg.World.DefaultWorldName
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedding engine: %w", err)
	}

	st, err := store.New(cfg.Store, cfg.DataDir, engine.Dimensions())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	world, err := st.GetWorldByName(ctx, name)
	if err != nil {
		return fmt.Errorf("world %q not found, run 'smalltown seed' first: %w", name, err)
	}
	agents, err := st.ListAgents(ctx, world.ID)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return fmt.Errorf("world %q has no agents", name)
	}
	logger.Info("world loaded",
		zap.String("world", world.Name),
		zap.Int("agents", len(agents)),
		zap.String("embedding", engine.Name()))

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	gateway, err := chat.New(cfg.Chat)
	if err != nil {
		return fmt.Errorf("failed to start chat gateway: %w", err)
	}
	if closer, ok := gateway.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	stepDuration := time.Duration(cfg.World.StepDurationSeconds) * time.Second
	sched := sim.NewScheduler(st, gateway, *world, stepDuration)
	b := bus.New(st, sched, world.ID)

	registry := tools.NewDefaultRegistry()
	scorer := cognition.NewImportanceScorer(client)
	reflector := cognition.NewReflector(client)
	planner := cognition.NewPlanner(client)
	reactor := cognition.NewReactor(client)
	summarizer := cognition.NewSummarizer(client)
	exec := executor.New(client, registry, st)

	for _, agent := range agents {
		agent := agent
		stream := memory.New(st, engine, scorer, reflector, cfg.Memory, agent, cfg.World.SpeedMultiplier)
		toolCtx := func(world *types.WorldContext) tools.ToolContext {
			return tools.ToolContext{
				AgentID:                 agent.ID,
				World:                   world,
				Store:                   st,
				Events:                  b,
				Chat:                    gateway,
				Embed:                   engine,
				DocumentSearchK:         cfg.Store.DocumentSearchK,
				DocumentSearchThreshold: cfg.Store.DocumentSearchThreshold,
			}
		}
		sched.AddRunner(sim.NewAgentRunner(agent.ID, st, b, stream,
			planner, reactor, summarizer, exec, toolCtx, sim.RunnerOptions{
				SummaryCount:   cfg.Memory.SummaryMemoryCount,
				PlanningWindow: cfg.World.PlanningWindow,
			}))
	}

	fmt.Printf("Running world %q with %d agents (step %s). Ctrl-C to stop.\n",
		world.Name, len(agents), stepDuration)
	err = sched.Run(ctx, b)
	logger.Info("world stopped", zap.Int("steps", sched.Step()))
	return err
}
