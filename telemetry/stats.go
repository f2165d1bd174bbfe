// Package telemetry provides production tracking, field statistics, and
// bookmarking for oilfield runs.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/oilfield/depletion"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int64   `csv:"-"`
	WindowEndTick   int64   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Production during window
	Units       float64 `csv:"units"`
	Extractions int     `csv:"extractions"`
	TotalUnits  float64 `csv:"total_units"`

	// Wells at window end
	Wells    int     `csv:"wells"`
	DryWells int     `csv:"dry_wells"`
	MeanRate float64 `csv:"mean_rate"` // units per minute

	// Saturation distribution (sampled at window end)
	SatMean float64 `csv:"sat_mean"`
	SatStd  float64 `csv:"sat_std"`
	SatMin  float64 `csv:"sat_min"`
	SatP10  float64 `csv:"sat_p10"`
	SatP50  float64 `csv:"sat_p50"`
	SatP90  float64 `csv:"sat_p90"`
	SatMax  float64 `csv:"sat_max"`

	Remaining float64 `csv:"remaining"` // Units still extractable from the whole field
}

// FieldStats summarises a field's saturation.
type FieldStats struct {
	Cells     int
	Mean      float64
	Std       float64
	Min       float64
	P10       float64
	P50       float64
	P90       float64
	Max       float64
	Sum       float64
	Remaining float64
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeSaturationStats calculates the distribution of saturation values.
// Std is the sample standard deviation.
func ComputeSaturationStats(values []float64) FieldStats {
	n := len(values)
	if n == 0 {
		return FieldStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	fs := FieldStats{
		Cells: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Sum:   floats.Sum(sorted),
		P10:   Percentile(sorted, 0.10),
		P50:   Percentile(sorted, 0.50),
		P90:   Percentile(sorted, 0.90),
	}
	if n > 1 {
		fs.Mean, fs.Std = stat.MeanStdDev(sorted, nil)
	} else {
		fs.Mean = sorted[0]
	}
	return fs
}

// ComputeFieldStats summarises a field's grid and its remaining units.
func ComputeFieldStats(f *depletion.Field) FieldStats {
	fs := ComputeSaturationStats(f.Grid().Values())
	fs.Remaining = f.TotalRemaining()
	return fs
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartTick),
		slog.Int64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Float64("units", s.Units),
		slog.Int("extractions", s.Extractions),
		slog.Float64("total_units", s.TotalUnits),
		slog.Int("wells", s.Wells),
		slog.Int("dry_wells", s.DryWells),
		slog.Float64("mean_rate", s.MeanRate),
		slog.Float64("sat_mean", s.SatMean),
		slog.Float64("sat_std", s.SatStd),
		slog.Float64("sat_p10", s.SatP10),
		slog.Float64("sat_p50", s.SatP50),
		slog.Float64("sat_p90", s.SatP90),
		slog.Float64("remaining", s.Remaining),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"units", s.Units,
		"total_units", s.TotalUnits,
		"wells", s.Wells,
		"dry_wells", s.DryWells,
		"mean_rate", s.MeanRate,
		"sat_mean", s.SatMean,
		"remaining", s.Remaining,
	)
}
