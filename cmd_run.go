package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/phylo/config"
	"github.com/pthm-cable/phylo/game"
	"github.com/pthm-cable/phylo/telemetry"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a headless simulation",
		Long: `Run steps a simulation without a display until interrupted or until
--max-ticks is reached. Window statistics go to the log, to CSV files under
--output-dir, and to the SQLite archive named by --archive.`,
		RunE: runSimulation,
	}

	cmd.Flags().String("name", "", "Simulation name; seeds the world (empty = random)")
	cmd.Flags().Uint64("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	cmd.Flags().String("speed", "", "pause, slow, medium, fast, ludicrous (empty = use config)")
	cmd.Flags().String("output-dir", "", "Directory for CSV telemetry and the config snapshot")
	cmd.Flags().String("archive", "", "SQLite file recording runs, windows, and saves")
	cmd.Flags().String("save-dir", "", "Directory for autosaves (empty = use config)")
	cmd.Flags().String("load", "", "Resume from a save file")
	cmd.Flags().Int("threads", 0, "Worker threads (0 = use config)")
	cmd.Flags().Bool("dynamic-lights", false, "Scroll the light field and cycle illumination")
	cmd.Flags().Bool("log-stats", false, "Log window statistics")

	return cmd
}

func runSimulation(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if err := config.Init(configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Cfg()

	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	speed, err := config.ParseSpeed(cfg.Simulation.Speed)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim, err := buildSimulation(cmd, cfg)
	if err != nil {
		return err
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	out, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config snapshot", "error", err)
	}

	archivePath, _ := cmd.Flags().GetString("archive")
	archive, err := telemetry.OpenArchive(ctx, archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	maxTicks, _ := cmd.Flags().GetUint64("max-ticks")
	logStats, _ := cmd.Flags().GetBool("log-stats")
	runID := uuid.NewString()

	slog.Info("starting headless simulation",
		"run_id", runID,
		"name", sim.Name(),
		"seed", sim.Seed(),
		"threads", cfg.Derived.Threads,
		"max_ticks", maxTicks,
		"dynamic_lights", cfg.World.DynamicLights,
	)

	r := game.NewRunner(cfg, sim, game.RunnerOptions{
		Output:   out,
		Archive:  archive,
		RunID:    runID,
		Speed:    speed,
		MaxTicks: maxTicks,
		LogStats: logStats,
	})
	return r.Run(ctx)
}

// applyRunFlags overrides config values with any flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("speed") {
		cfg.Simulation.Speed, _ = flags.GetString("speed")
	}
	if flags.Changed("save-dir") {
		cfg.Simulation.SaveDir, _ = flags.GetString("save-dir")
	}
	if flags.Changed("name") {
		cfg.Simulation.Name, _ = flags.GetString("name")
	}
	if flags.Changed("dynamic-lights") {
		cfg.World.DynamicLights, _ = flags.GetBool("dynamic-lights")
	}
	if flags.Changed("threads") {
		threads, _ := flags.GetInt("threads")
		if threads < 1 {
			return fmt.Errorf("--threads must be at least 1, got %d", threads)
		}
		cfg.Pool.Threads = threads
		cfg.Derived.Threads = threads
	}
	return nil
}

// buildSimulation resumes from --load or seeds a new world.
func buildSimulation(cmd *cobra.Command, cfg *config.Config) (*game.Simulation, error) {
	if path, _ := cmd.Flags().GetString("load"); path != "" {
		sim, err := game.LoadFile(cfg, path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		slog.Info("loaded save", "path", path, "tick", sim.Tick(), "cells", sim.NumCells())
		return sim, nil
	}

	name := cfg.Simulation.Name
	if name == "" {
		name = game.RandomName(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
	}
	return game.NewSimulation(cfg, name), nil
}
