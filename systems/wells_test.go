package systems

import (
	"fmt"
	"math"
	"testing"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/oilfield/depletion"
)

var testCurve = depletion.NewCurve(1200, 0.95)

func newTestSystem(grid *depletion.Grid, radius int, halfLife float64) *WellSystem {
	field := depletion.NewField(grid, testCurve, depletion.Params{
		DepletionRadius: radius,
		HalfLife:        halfLife,
		Spread:          1.5,
	})
	return NewWellSystem(ecs.NewWorld(), field)
}

func TestWellStepMatchesPrediction(t *testing.T) {
	tests := []struct {
		name string
		dt   float64
	}{
		{"single step", 900},
		{"one second ticks", 1},
		{"uneven ticks", 7.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSystem(depletion.NewUniformGrid(7, 7, 1), 0, 1)
			s.AddWell("w", 3, 3)

			pred := s.Predict(900)
			if len(pred) != 1 || pred[0].Units != 3 {
				t.Fatalf("Predict = %+v, want 3 units", pred)
			}

			var produced float64
			for s.Elapsed() < 900 {
				produced += s.Step(math.Min(tt.dt, 900-s.Elapsed()))
			}
			if produced != 3 {
				t.Errorf("produced %v units in 900s, want 3", produced)
			}

			wells := s.Wells()
			if wells[0].Units != 3 {
				t.Errorf("well units = %v, want 3", wells[0].Units)
			}
			// 60 + 120 + 240 seconds used
			if math.Abs(wells[0].Progress-480) > 1e-9 {
				t.Errorf("progress = %v, want 480", wells[0].Progress)
			}
		})
	}
}

func TestWellPredictLeavesFieldUntouched(t *testing.T) {
	grid := depletion.NewUniformGrid(5, 5, 0.8)
	s := newTestSystem(grid, 1, 50)
	s.AddWell("a", 1, 1)
	s.AddWell("b", 3, 3)

	before := grid.Values()
	preds := s.Predict(3600)
	if len(preds) != 2 {
		t.Fatalf("got %d predictions, want 2", len(preds))
	}
	for _, p := range preds {
		if p.Units <= 0 || p.Seconds > 3600 || p.Horizon != 3600 {
			t.Errorf("prediction %+v", p)
		}
	}

	after := grid.Values()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("Predict changed cell %d", i)
		}
	}

	for _, w := range s.Wells() {
		if w.Forecast.Horizon != 3600 || w.Forecast.Units <= 0 {
			t.Errorf("well %s forecast = %+v", w.Name, w.Forecast)
		}
	}
}

func TestWellOnExtract(t *testing.T) {
	s := newTestSystem(depletion.NewUniformGrid(7, 7, 1), 1, 10)
	s.AddWell("north", 2, 5)

	var calls int
	s.OnExtract(func(well string, x, y int, units float64) {
		calls++
		if well != "north" || x != 2 || y != 5 || units != 1 {
			t.Errorf("hook got %s %d,%d %v", well, x, y, units)
		}
	})

	produced := s.Step(600)
	if produced == 0 {
		t.Fatal("nothing produced")
	}
	if float64(calls) != produced {
		t.Errorf("hook called %d times for %v units", calls, produced)
	}
	if s.Field().Grid().Get(2, 5) >= 1 {
		t.Error("centre cell not depleted")
	}
}

func TestWellRateDropsAsFieldDepletes(t *testing.T) {
	s := newTestSystem(depletion.NewUniformGrid(5, 5, 1), 1, 5)
	s.AddWell("w", 2, 2)
	start := s.Wells()[0].Rate

	s.Step(1800)
	if got := s.Wells()[0].Rate; got >= start {
		t.Errorf("rate %v did not drop from %v", got, start)
	}
}

func TestWellGoesDry(t *testing.T) {
	s := newTestSystem(depletion.NewGrid(3, 3), 1, 10)
	s.AddWell("empty", 1, 1)

	if got := s.Step(5000); got != 0 {
		t.Errorf("produced %v from an empty field", got)
	}
	w := s.Wells()[0]
	if !w.Dry {
		t.Error("well not marked dry")
	}

	// Refill and revive
	s.SetField(depletion.NewField(depletion.NewUniformGrid(3, 3, 1), testCurve, s.Field().Params()))
	s.Revive()
	if s.Wells()[0].Dry {
		t.Error("well still dry after Revive")
	}
	if got := s.Step(600); got == 0 {
		t.Error("revived well produced nothing")
	}
}

func TestRemoveWell(t *testing.T) {
	s := newTestSystem(depletion.NewUniformGrid(4, 4, 1), 0, 10)
	s.AddWell("a", 0, 0)
	s.AddWell("b", 1, 1)
	s.AddWell("a", 2, 2)

	if !s.RemoveWell("a") {
		t.Fatal("RemoveWell(a) = false")
	}
	if s.RemoveWell("missing") {
		t.Error("RemoveWell(missing) = true")
	}
	wells := s.Wells()
	if len(wells) != 1 || wells[0].Name != "b" {
		t.Errorf("remaining wells = %+v", wells)
	}
}

func TestPredictParallelMatchesSerial(t *testing.T) {
	grid := depletion.NewGrid(32, 32)
	for x := 0; x < 32; x++ {
		for y := 0; y < 32; y++ {
			grid.Set(x, y, float64((x*7+y*3)%10)/10)
		}
	}
	s := newTestSystem(grid, 2, 50)
	for i := 0; i < 3*parallelThreshold; i++ {
		s.AddWell(fmt.Sprintf("w%d", i), i*5, i*3)
	}

	preds := s.Predict(7200)
	if len(preds) != 3*parallelThreshold {
		t.Fatalf("got %d predictions, want %d", len(preds), 3*parallelThreshold)
	}
	wells := s.Wells()
	for i, p := range preds {
		units, seconds := s.Field().UnitsExtractedDuringPeriod(p.X, p.Y, 7200)
		if p.Units != units || p.Seconds != seconds {
			t.Errorf("%s: parallel (%d, %v), serial (%d, %v)", p.Name, p.Units, p.Seconds, units, seconds)
		}
		if wells[i].Name != p.Name || wells[i].Forecast.Units != p.Units {
			t.Errorf("well %s forecast = %+v, prediction %+v", wells[i].Name, wells[i].Forecast, p)
		}
	}
}
