package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"smalltown/internal/embedding"
	"smalltown/internal/store"
	"smalltown/internal/types"
)

var (
	seedWorldName    string
	seedLobbyChannel string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo world",
	Long: `Creates a small demo world: a Lobby and a Conference Room, populated
by two agents with opposing dispositions. Seeding is idempotent per world
name; an existing world is left untouched.`,
	RunE: seedWorld,
}

func init() {
	seedCmd.Flags().StringVar(&seedWorldName, "name", "", "world name (defaults to the configured world)")
	seedCmd.Flags().StringVar(&seedLobbyChannel, "lobby-channel", "", "chat channel id to bind the Lobby to")
}

func seedWorld(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	name := seedWorldName
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

	if existing, err := st.GetWorldByName(ctx, name); err == nil {
		fmt.Printf("World %q already exists (%s), nothing to do.\n", existing.Name, existing.ID)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	world := &types.World{ID: types.NewID(), Name: name}
	if err := st.CreateWorld(ctx, world); err != nil {
		return err
	}

	lobby := &types.Location{
		ID:          types.NewID(),
		WorldID:     world.ID,
		Name:        "Lobby",
		Description: "The open entrance hall where everyone passes through.",
		ChannelID:   seedLobbyChannel,
	}
	confRoom := &types.Location{
		ID:          types.NewID(),
		WorldID:     world.ID,
		Name:        "Conference Room",
		Description: "A quiet glass-walled room for focused conversations.",
	}
	for _, l := range []*types.Location{lobby, confRoom} {
		if err := st.CreateLocation(ctx, l); err != nil {
			return err
		}
	}

	alice := &types.Agent{
		ID:       types.NewID(),
		WorldID:  world.ID,
		FullName: "Alice Johnson",
		PrivateBio: "An outgoing project manager who believes every problem " +
			"dissolves once the right people talk to each other. Secretly " +
			"worried the team finds her meetings tedious.",
		PublicBio: "a project manager who loves getting people together",
		Directives: []string{
			"Know what everyone in the office is working on.",
			"Make newcomers feel welcome.",
		},
		LocationID: lobby.ID,
	}
	bob := &types.Agent{
		ID:       types.NewID(),
		WorldID:  world.ID,
		FullName: "Bob Smith",
		PrivateBio: "A reserved backend engineer who would rather write a " +
			"design doc than sit in a meeting. Warms up quickly to anyone " +
			"who asks a technical question.",
		PublicBio: "a backend engineer who likes quiet and good documentation",
		Directives: []string{
			"Finish the storage migration design.",
			"Avoid meetings unless something genuinely needs you.",
		},
		LocationID: confRoom.ID,
	}
	for _, a := range []*types.Agent{alice, bob} {
		if err := st.CreateAgent(ctx, a); err != nil {
			return err
		}
	}

	fmt.Printf("Seeded world %q: 2 locations, 2 agents.\n", name)
	return nil
}
