package telemetry

import (
	"log/slog"
	"time"
)

// Phase is a timed part of a simulation tick.
type Phase int

// Phases of a tick, in the order they run.
const (
	PhaseWells     Phase = iota // pumping, extraction, and change notification
	PhasePredict                // well forecasts
	PhaseTelemetry              // window stats and CSV output
	numPhases
)

var phaseNames = [numPhases]string{"wells", "predict", "telemetry"}

// String returns the phase's log and CSV name.
func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// tickSample is the timing of one tick.
type tickSample struct {
	total  time.Duration
	phases [numPhases]time.Duration
	units  float64
}

// PerfCollector times ticks and their phases over a rolling window.
//
// Calls must follow StartTick, StartPhase..., EndTick. A phase runs until the
// next StartPhase or EndTick.
type PerfCollector struct {
	dt      float64 // pump seconds per tick
	samples []tickSample
	next    int
	count   int

	current    tickSample
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool
}

// NewPerfCollector creates a collector averaging over windowSize ticks of dt
// pump seconds each.
func NewPerfCollector(windowSize int, dt float64) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		dt:      dt,
		samples: make([]tickSample, windowSize),
	}
}

// StartTick begins timing a tick.
func (p *PerfCollector) StartTick() {
	p.tickStart = time.Now()
	p.current = tickSample{}
	p.inPhase = false
}

// StartPhase ends the running phase, if any, and starts phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := time.Now()
	p.endPhase(now)
	p.phase = phase
	p.phaseStart = now
	p.inPhase = true
}

func (p *PerfCollector) endPhase(now time.Time) {
	if p.inPhase && p.phase >= 0 && p.phase < numPhases {
		p.current.phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.inPhase = false
}

// EndTick records the tick along with the units it produced.
func (p *PerfCollector) EndTick(units float64) {
	now := time.Now()
	p.endPhase(now)
	p.current.total = now.Sub(p.tickStart)
	p.current.units = units

	p.samples[p.next] = p.current
	p.next = (p.next + 1) % len(p.samples)
	if p.count < len(p.samples) {
		p.count++
	}
}

// PerfStats is the window's timing summary.
type PerfStats struct {
	AvgTick time.Duration
	MinTick time.Duration
	MaxTick time.Duration

	PhaseAvg [numPhases]time.Duration
	PhasePct [numPhases]float64 // share of the average tick, 0-100

	TicksPerSecond float64
	SimSpeed       float64 // pump seconds simulated per wall second
	UnitsPerSecond float64 // units produced per wall second
}

// Stats summarises the ticks in the window. An empty window gives zero stats.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.count == 0 {
		return s
	}

	var total time.Duration
	var phaseSum [numPhases]time.Duration
	var units float64
	for i := 0; i < p.count; i++ {
		sample := p.samples[i]
		total += sample.total
		units += sample.units
		if i == 0 || sample.total < s.MinTick {
			s.MinTick = sample.total
		}
		s.MaxTick = max(s.MaxTick, sample.total)
		for ph, d := range sample.phases {
			phaseSum[ph] += d
		}
	}

	n := time.Duration(p.count)
	s.AvgTick = total / n
	for ph := range phaseSum {
		s.PhaseAvg[ph] = phaseSum[ph] / n
		if s.AvgTick > 0 {
			s.PhasePct[ph] = float64(s.PhaseAvg[ph]) / float64(s.AvgTick) * 100
		}
	}
	if s.AvgTick > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.AvgTick)
		s.SimSpeed = s.TicksPerSecond * p.dt
	}
	if total > 0 {
		s.UnitsPerSecond = units / total.Seconds()
	}
	return s
}

// LogStats logs the summary at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "perf", s)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTick.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTick.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Float64("sim_speed", s.SimSpeed),
	}
	for ph := Phase(0); ph < numPhases; ph++ {
		if s.PhasePct[ph] > 0.1 {
			attrs = append(attrs, slog.Float64(ph.String()+"_pct", s.PhasePct[ph]))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	WindowEnd    int64   `csv:"window_end"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	SimSpeed     float64 `csv:"sim_speed"`
	UnitsPerSec  float64 `csv:"units_per_sec"`
	WellsPct     float64 `csv:"wells_pct"`
	PredictPct   float64 `csv:"predict_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV flattens the summary for the window ending at windowEnd.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgTickUS:    s.AvgTick.Microseconds(),
		MinTickUS:    s.MinTick.Microseconds(),
		MaxTickUS:    s.MaxTick.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		SimSpeed:     s.SimSpeed,
		UnitsPerSec:  s.UnitsPerSecond,
		WellsPct:     s.PhasePct[PhaseWells],
		PredictPct:   s.PhasePct[PhasePredict],
		TelemetryPct: s.PhasePct[PhaseTelemetry],
	}
}
