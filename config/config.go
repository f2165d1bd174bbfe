// Package config provides configuration loading and access for the oilfield.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/oilfield/depletion"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// Config holds all oilfield configuration parameters.
type Config struct {
	Curve      CurveConfig      `yaml:"curve"`
	Field      FieldConfig      `yaml:"field"`
	Grid       GridConfig       `yaml:"grid"`
	Wells      []WellConfig     `yaml:"wells"`
	Simulation SimulationConfig `yaml:"simulation"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Stream     StreamConfig     `yaml:"stream"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Calibrate  CalibrateConfig  `yaml:"calibrate"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// CurveConfig holds the depletion curve constants.
type CurveConfig struct {
	MaxTime  float64 `yaml:"max_time"` // Seconds per unit at zero saturation
	Dampener float64 `yaml:"dampener"` // In (0,1); time per unit at full saturation is max_time*(1-dampener)
}

// FieldConfig holds the spatial extraction parameters.
type FieldConfig struct {
	DepletionRadius        int     `yaml:"depletion_radius"`          // Cells drained around a well
	ProductionRateHalfLife float64 `yaml:"production_rate_half_life"` // Units extracted before local time per unit doubles
	Spread                 float64 `yaml:"spread"`                    // Gaussian sigma in cells
}

// GridConfig describes a generated field, used when no snapshot is loaded.
type GridConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Seed        int64   `yaml:"seed"`
	Scale       float64 `yaml:"scale"`       // Base noise frequency in cycles across the grid
	Octaves     int     `yaml:"octaves"`     // FBM octaves
	Persistence float64 `yaml:"persistence"` // Amplitude multiplier per octave
	Contrast    float64 `yaml:"contrast"`    // Exponent applied to the noise (higher = sparser pockets)
}

// WellConfig places a well on the grid.
type WellConfig struct {
	Name string `yaml:"name"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
}

// SimulationConfig holds headless run parameters.
type SimulationConfig struct {
	DT                float64 `yaml:"dt"`                 // Seconds of pump time per tick
	MaxTicks          int     `yaml:"max_ticks"`          // 0 = unlimited
	PredictionHorizon float64 `yaml:"prediction_horizon"` // Seconds ahead for well forecasts
	PredictEvery      int     `yaml:"predict_every"`      // Ticks between forecasts (0 disables)
}

// SnapshotConfig holds saved-layer file settings.
type SnapshotConfig struct {
	Path       string `yaml:"path"`        // Layer loaded at start; generated from grid settings if missing
	HiddenPath string `yaml:"hidden_path"` // Where a hidden layer is kept until shown again
	Validate   bool   `yaml:"validate"`    // Check files against the embedded JSON schema on load
	SaveOnExit bool   `yaml:"save_on_exit"`
}

// LedgerConfig holds extraction ledger settings.
type LedgerConfig struct {
	Path string `yaml:"path"` // Empty disables the ledger
}

// StreamConfig holds websocket delta stream settings.
type StreamConfig struct {
	Addr       string `yaml:"addr"`        // Empty disables the stream
	BufferSize int    `yaml:"buffer_size"` // Batches queued per subscriber before dropping
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Seconds of pump time per production window
}

// CalibrateConfig holds half-life calibration targets.
type CalibrateConfig struct {
	TargetUnits  float64 `yaml:"target_units"`  // Units a fresh well should produce over Horizon
	Horizon      float64 `yaml:"horizon"`       // Seconds
	MinHalfLife  float64 `yaml:"min_half_life"` // Search lower bound
	MaxHalfLife  float64 `yaml:"max_half_life"` // Search upper bound
	MaxEvals     int     `yaml:"max_evals"`
	InitHalfLife float64 `yaml:"init_half_life"` // Starting point (0 = use field.production_rate_half_life)
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Curve  depletion.Curve  // Curve built from CurveConfig
	Params depletion.Params // Field params built from FieldConfig
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.computeDerived()

	return cfg, nil
}

// Validate rejects values for which the depletion curve is undefined.
func (c *Config) Validate() error {
	switch {
	case c.Curve.MaxTime <= 0:
		return fmt.Errorf("%w: curve.max_time must be > 0, got %v", ErrInvalid, c.Curve.MaxTime)
	case c.Curve.Dampener <= 0 || c.Curve.Dampener >= 1:
		// At 1 a full cell takes zero time per unit and holds infinite units
		return fmt.Errorf("%w: curve.dampener must be in (0,1), got %v", ErrInvalid, c.Curve.Dampener)
	case c.Field.DepletionRadius < 0:
		return fmt.Errorf("%w: field.depletion_radius must be >= 0, got %d", ErrInvalid, c.Field.DepletionRadius)
	case c.Field.ProductionRateHalfLife <= 0:
		return fmt.Errorf("%w: field.production_rate_half_life must be > 0, got %v", ErrInvalid, c.Field.ProductionRateHalfLife)
	case c.Field.Spread <= 0:
		return fmt.Errorf("%w: field.spread must be > 0, got %v", ErrInvalid, c.Field.Spread)
	case c.Grid.Width <= 0 || c.Grid.Height <= 0:
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrInvalid, c.Grid.Width, c.Grid.Height)
	case c.Simulation.DT <= 0:
		return fmt.Errorf("%w: simulation.dt must be > 0, got %v", ErrInvalid, c.Simulation.DT)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Curve = depletion.NewCurve(c.Curve.MaxTime, c.Curve.Dampener)
	c.Derived.Params = depletion.Params{
		DepletionRadius: c.Field.DepletionRadius,
		HalfLife:        c.Field.ProductionRateHalfLife,
		Spread:          c.Field.Spread,
	}

	// Name unnamed wells by position
	for i := range c.Wells {
		if c.Wells[i].Name == "" {
			c.Wells[i].Name = fmt.Sprintf("well-%d-%d", c.Wells[i].X, c.Wells[i].Y)
		}
	}

	if c.Stream.BufferSize <= 0 {
		c.Stream.BufferSize = 64
	}
	if c.Calibrate.InitHalfLife == 0 {
		c.Calibrate.InitHalfLife = c.Field.ProductionRateHalfLife
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
