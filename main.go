package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/oilfield/config"
	"github.com/pthm-cable/oilfield/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	snapshot := flag.String("snapshot", "", "Layer file to load and save (empty = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	dbPath := flag.String("db", "", "Extraction ledger database (empty = use config)")
	addr := flag.String("addr", "", "Serve the delta stream on this address (empty = use config)")
	seed := flag.Int64("seed", 0, "Seed for a generated field (0 = use config)")
	maxTicks := flag.Int("max-ticks", -1, "Stop after N ticks (0 = unlimited, -1 = use config)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	hide := flag.Bool("hide", false, "Hide the layer before running")
	show := flag.Bool("show", false, "Show the hidden layer before running")
	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *hide && *show {
		fatal("--hide and --show are mutually exclusive")
	}

	if err := config.Init(*configPath); err != nil {
		fatal("failed to load config", "error", err)
	}
	cfg := config.Cfg()

	// CLI overrides
	if *snapshot != "" {
		cfg.Snapshot.Path = *snapshot
	}
	if *dbPath != "" {
		cfg.Ledger.Path = *dbPath
	}
	if *addr != "" {
		cfg.Stream.Addr = *addr
	}
	if *seed != 0 {
		cfg.Grid.Seed = *seed
	}
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	ticks := int64(cfg.Simulation.MaxTicks)
	if *maxTicks >= 0 {
		ticks = int64(*maxTicks)
	}

	s, err := sim.New(sim.Options{
		Config:    cfg,
		OutputDir: *outputDir,
		LogStats:  *logStats,
		Logger:    logger,
	})
	if err != nil {
		fatal("failed to start", "error", err)
	}

	switch {
	case *hide:
		err = s.Hide()
	case *show:
		err = s.Show()
	}
	if err != nil {
		s.Close()
		fatal("layer toggle failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx) }()

	slog.Info("starting simulation",
		"max_ticks", ticks,
		"dt", cfg.Simulation.DT,
		"stats_window", cfg.Telemetry.StatsWindow,
		"stream", cfg.Stream.Addr,
		"ledger", cfg.Ledger.Path,
	)
	s.Run(ctx, ticks)

	// Stop the stream before closing the run
	stop()
	if err := <-served; err != nil {
		slog.Error("stream failed", "error", err)
	}
	if err := s.Close(); err != nil {
		fatal("failed to close", "error", err)
	}
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
