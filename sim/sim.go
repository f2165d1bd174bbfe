// Package sim runs an oilfield: wells pumping a depletion field, with the
// ledger, stream, and telemetry attached.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/oilfield/config"
	"github.com/pthm-cable/oilfield/depletion"
	"github.com/pthm-cable/oilfield/layer"
	"github.com/pthm-cable/oilfield/ledger"
	"github.com/pthm-cable/oilfield/stream"
	"github.com/pthm-cable/oilfield/systems"
	"github.com/pthm-cable/oilfield/telemetry"
)

// Options configures a run. An empty OutputDir disables CSV output; the
// ledger, stream, and snapshot files are switched off by empty paths in the
// config.
type Options struct {
	Config    *config.Config
	OutputDir string
	LogStats  bool
	Logger    *slog.Logger

	// StatsCallback, if set, receives every flushed window.
	StatsCallback func(telemetry.WindowStats)
}

// Sim holds the complete run state.
type Sim struct {
	cfg *config.Config
	log *slog.Logger

	world *ecs.World
	field *depletion.Field
	wells *systems.WellSystem

	store  *layer.Store // layer loaded at start and saved on exit
	hidden *layer.Store // hide/show file

	ledger    *ledger.Ledger
	hub       *stream.Hub
	notifiers depletion.Notifiers
	runID     string
	source    string // where the starting grid came from

	// Telemetry
	collector        *telemetry.Collector
	perfCollector    *telemetry.PerfCollector
	bookmarkDetector *telemetry.BookmarkDetector
	outputManager    *telemetry.OutputManager
	logStats         bool
	statsCallback    func(telemetry.WindowStats)

	tick int64
}

// New builds a run from opts. The starting grid is read from the snapshot
// path when it exists and generated from the grid settings otherwise.
func New(opts Options) (*Sim, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("sim: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sim{
		cfg:           cfg,
		log:           logger,
		world:         ecs.NewWorld(),
		logStats:      opts.LogStats,
		statsCallback: opts.StatsCallback,
	}
	if cfg.Snapshot.Path != "" {
		s.store = layer.NewStore(cfg.Snapshot.Path, cfg.Snapshot.Validate, logger)
	}
	if cfg.Snapshot.HiddenPath != "" {
		s.hidden = layer.NewStore(cfg.Snapshot.HiddenPath, cfg.Snapshot.Validate, logger)
	}

	grid, err := s.startingGrid()
	if err != nil {
		return nil, err
	}

	if cfg.Ledger.Path != "" {
		l, err := ledger.Open(cfg.Ledger.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		s.ledger = l
		s.notifiers = append(s.notifiers, l)
	}
	if cfg.Stream.Addr != "" {
		s.hub = stream.NewHub(grid, cfg.Stream.BufferSize, logger)
		s.notifiers = append(s.notifiers, s.hub)
	}

	s.field = depletion.NewField(grid, cfg.Derived.Curve, cfg.Derived.Params)
	s.field.SetNotifier(s.notifier())
	s.wells = systems.NewWellSystem(s.world, s.field)
	for _, w := range cfg.Wells {
		s.wells.AddWell(w.Name, w.X, w.Y)
	}

	if s.ledger != nil {
		id, err := s.ledger.StartRun(ledger.RunInfo{
			Width:    grid.W,
			Height:   grid.H,
			Curve:    cfg.Derived.Curve,
			Params:   cfg.Derived.Params,
			Snapshot: s.source,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.runID = id
	}

	s.collector = telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Simulation.DT)
	s.perfCollector = telemetry.NewPerfCollector(int(s.collector.WindowDurationTicks()), cfg.Simulation.DT)
	s.bookmarkDetector = telemetry.NewBookmarkDetector(10, s.field.TotalRemaining())
	s.wells.OnExtract(s.recordExtraction)

	om, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		s.log.Error("failed to write config", "error", err)
	}

	s.log.Info("field ready",
		"source", s.source,
		"width", grid.W,
		"height", grid.H,
		"wells", len(cfg.Wells),
		"remaining", s.field.TotalRemaining(),
		"run_id", s.runID,
	)
	return s, nil
}

// notifier returns the field's notifier, or nil when nothing listens.
func (s *Sim) notifier() depletion.Notifier {
	if len(s.notifiers) == 0 {
		return nil
	}
	return s.notifiers
}

func (s *Sim) startingGrid() (*depletion.Grid, error) {
	if s.store != nil {
		v, err := s.store.Load()
		switch {
		case err == nil:
			s.source = s.store.Path
			return v.Grid(), nil
		case !errors.Is(err, layer.ErrSnapshotMissing):
			return nil, fmt.Errorf("loading layer: %w", err)
		}
	}

	g := s.cfg.Grid
	s.source = fmt.Sprintf("generated:seed=%d", g.Seed)
	return layer.Generate(g.Width, g.Height, g.Seed, layer.NoiseParams{
		Scale:       g.Scale,
		Octaves:     g.Octaves,
		Persistence: g.Persistence,
		Contrast:    g.Contrast,
	}), nil
}

func (s *Sim) recordExtraction(well string, x, y int, units float64) {
	s.collector.RecordExtraction(well, units)
	if s.ledger != nil {
		if err := s.ledger.RecordExtraction(well, x, y, units); err != nil {
			s.log.Error("ledger extraction", "error", err, "well", well)
		}
	}
}

// Serve runs the delta stream until ctx is cancelled. It returns at once
// when streaming is disabled.
func (s *Sim) Serve(ctx context.Context) error {
	if s.hub == nil {
		return nil
	}
	return s.hub.Run(ctx, s.cfg.Stream.Addr)
}

// Update advances the run by one tick.
func (s *Sim) Update() {
	s.tick++
	if s.ledger != nil {
		s.ledger.SetTick(s.tick)
	}
	if s.hub != nil {
		s.hub.SetTick(s.tick)
	}

	s.perfCollector.StartTick()

	s.perfCollector.StartPhase(telemetry.PhaseWells)
	produced := s.wells.Step(s.cfg.Simulation.DT)

	if every := s.cfg.Simulation.PredictEvery; every > 0 && s.tick%int64(every) == 0 {
		s.perfCollector.StartPhase(telemetry.PhasePredict)
		s.predict()
	}

	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	s.perfCollector.EndTick(produced)
}

// Run calls Update until maxTicks ticks have run (0 = unlimited) or ctx is
// cancelled.
func (s *Sim) Run(ctx context.Context, maxTicks int64) {
	for {
		select {
		case <-ctx.Done():
			s.log.Info("run cancelled", "tick", s.tick)
			return
		default:
		}
		s.Update()
		if maxTicks > 0 && s.tick >= maxTicks {
			s.log.Info("max ticks reached", "tick", s.tick)
			return
		}
	}
}

// Tick returns the current tick.
func (s *Sim) Tick() int64 { return s.tick }

// Field returns the live field.
func (s *Sim) Field() *depletion.Field { return s.field }

// Wells returns the well system.
func (s *Sim) Wells() *systems.WellSystem { return s.wells }

// Ledger returns the ledger, or nil.
func (s *Sim) Ledger() *ledger.Ledger { return s.ledger }

// RunID returns the ledger run, or "".
func (s *Sim) RunID() string { return s.runID }

// Close saves the layer if configured and releases every component.
func (s *Sim) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.store != nil && s.cfg.Snapshot.SaveOnExit && s.field != nil {
		keep(s.store.Replace(layer.FromGrid(s.field.Grid())))
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.ledger != nil {
		keep(s.ledger.Err())
		keep(s.ledger.Close())
	}
	keep(s.outputManager.Close())
	return firstErr
}

// Hub returns the stream hub, or nil.
func (s *Sim) Hub() *stream.Hub { return s.hub }
