package telemetry

import (
	"github.com/pthm-cable/oilfield/depletion"
	"github.com/pthm-cable/oilfield/systems"
)

// WellWindow is one well's production over a window.
type WellWindow struct {
	WindowEndTick int64   `csv:"window_end"`
	Well          string  `csv:"well"`
	X             int     `csv:"x"`
	Y             int     `csv:"y"`
	Units         float64 `csv:"units"`
	TotalUnits    float64 `csv:"total_units"`
	Rate          float64 `csv:"rate"`
	Saturation    float64 `csv:"saturation"` // Value of the well's own cell
	Dry           bool    `csv:"dry"`
}

// PredictionRecord is a well forecast for predictions.csv.
type PredictionRecord struct {
	Tick    int64   `csv:"tick"`
	Well    string  `csv:"well"`
	X       int     `csv:"x"`
	Y       int     `csv:"y"`
	Horizon float64 `csv:"horizon"`
	Units   int     `csv:"units"`
	Seconds float64 `csv:"seconds"`
}

// PredictionRecords converts forecasts taken at tick.
func PredictionRecords(tick int64, preds []systems.Prediction) []PredictionRecord {
	out := make([]PredictionRecord, len(preds))
	for i, p := range preds {
		out[i] = PredictionRecord{
			Tick:    tick,
			Well:    p.Name,
			X:       p.X,
			Y:       p.Y,
			Horizon: p.Horizon,
			Units:   p.Units,
			Seconds: p.Seconds,
		}
	}
	return out
}

// Collector accumulates production within time windows and produces WindowStats.
type Collector struct {
	windowDurationTicks int64
	dt                  float64

	// Current window tracking
	windowStartTick int64

	// Counters for current window
	units       float64
	extractions int
	byWell      map[string]float64

	totalUnits float64
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in pump seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int64(windowDurationSec / dt)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
		byWell:              make(map[string]float64),
	}
}

// RecordExtraction records units extracted by a well.
func (c *Collector) RecordExtraction(well string, units float64) {
	c.units += units
	c.extractions++
	c.byWell[well] += units
	c.totalUnits += units
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int64) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats plus one WellWindow per well, and resets
// counters for the next window.
func (c *Collector) Flush(currentTick int64, field *depletion.Field, wells []systems.WellState) (WindowStats, []WellWindow) {
	fs := ComputeFieldStats(field)

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Units:       c.units,
		Extractions: c.extractions,
		TotalUnits:  c.totalUnits,

		Wells: len(wells),

		SatMean: fs.Mean,
		SatStd:  fs.Std,
		SatMin:  fs.Min,
		SatP10:  fs.P10,
		SatP50:  fs.P50,
		SatP90:  fs.P90,
		SatMax:  fs.Max,

		Remaining: fs.Remaining,
	}

	perWell := make([]WellWindow, len(wells))
	var rateSum float64
	for i, w := range wells {
		if w.Dry {
			stats.DryWells++
		}
		rateSum += w.Rate
		perWell[i] = WellWindow{
			WindowEndTick: currentTick,
			Well:          w.Name,
			X:             w.X,
			Y:             w.Y,
			Units:         c.byWell[w.Name],
			TotalUnits:    w.Units,
			Rate:          w.Rate,
			Saturation:    field.Grid().Get(w.X, w.Y),
			Dry:           w.Dry,
		}
	}
	if len(wells) > 0 {
		stats.MeanRate = rateSum / float64(len(wells))
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.units = 0
	c.extractions = 0
	clear(c.byWell)

	return stats, perWell
}

// TotalUnits returns the units recorded since the collector was created.
func (c *Collector) TotalUnits() float64 {
	return c.totalUnits
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int64 {
	return c.windowDurationTicks
}
