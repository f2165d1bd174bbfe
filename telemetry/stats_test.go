package telemetry

import (
	"math"
	"testing"

	"github.com/pthm-cable/oilfield/depletion"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeSaturationStats(t *testing.T) {
	values := []float64{1.0, 0.3, 0.5, 0.1, 0.9, 0.2, 0.7, 0.4, 0.6, 0.8}
	fs := ComputeSaturationStats(values)

	if fs.Cells != 10 {
		t.Errorf("cells = %d, want 10", fs.Cells)
	}
	if math.Abs(fs.Mean-0.55) > 0.001 {
		t.Errorf("mean = %v, want 0.55", fs.Mean)
	}
	// Sample standard deviation of 0.1..1.0
	if math.Abs(fs.Std-0.30277) > 0.0001 {
		t.Errorf("std = %v, want 0.30277", fs.Std)
	}
	if math.Abs(fs.P10-0.19) > 0.001 || math.Abs(fs.P50-0.55) > 0.001 || math.Abs(fs.P90-0.91) > 0.001 {
		t.Errorf("percentiles = %v %v %v, want 0.19 0.55 0.91", fs.P10, fs.P50, fs.P90)
	}
	if fs.Min != 0.1 || fs.Max != 1.0 {
		t.Errorf("min/max = %v/%v", fs.Min, fs.Max)
	}
	if math.Abs(fs.Sum-5.5) > 1e-9 {
		t.Errorf("sum = %v, want 5.5", fs.Sum)
	}

	// Input is not reordered
	if values[0] != 1.0 {
		t.Error("input slice was sorted in place")
	}
}

func TestComputeSaturationStatsEdgeCases(t *testing.T) {
	if fs := ComputeSaturationStats(nil); fs != (FieldStats{}) {
		t.Errorf("empty input gave %+v", fs)
	}

	fs := ComputeSaturationStats([]float64{0.4})
	if fs.Mean != 0.4 || fs.Std != 0 || fs.P50 != 0.4 {
		t.Errorf("single value gave %+v", fs)
	}
}

func TestComputeFieldStats(t *testing.T) {
	grid := depletion.GridFromValues([][]float64{{1, 0.65}, {0.2, 0}})
	f := depletion.NewField(grid, depletion.NewCurve(1200, 0.95), depletion.Params{HalfLife: 3, Spread: 1.5})

	fs := ComputeFieldStats(f)
	if math.Abs(fs.Remaining-18.0372) > 0.001 {
		t.Errorf("remaining = %v, want 18.0372", fs.Remaining)
	}
	if math.Abs(fs.Mean-0.4625) > 1e-9 {
		t.Errorf("mean = %v, want 0.4625", fs.Mean)
	}
}
