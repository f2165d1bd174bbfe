package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/oilfield/config"
	"github.com/pthm-cable/oilfield/depletion"
	"github.com/pthm-cable/oilfield/systems"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}
	// Nil manager methods are no-ops
	if err := om.WriteWindow(WindowStats{}, nil); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	wells := []WellWindow{
		{WindowEndTick: 600, Well: "north", X: 1, Y: 2, Units: 3},
		{WindowEndTick: 600, Well: "south", X: 5, Y: 6, Units: 1},
	}
	for i := 0; i < 2; i++ {
		if err := om.WriteWindow(WindowStats{WindowEndTick: int64(600 * (i + 1)), Units: 4}, wells); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WritePredictions([]PredictionRecord{{Tick: 600, Well: "north", Units: 9}}); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteBookmark(Bookmark{Type: BookmarkWellDry, Tick: 600, Well: "south"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	field := readLines(t, filepath.Join(dir, "field.csv"))
	if len(field) != 3 {
		t.Fatalf("field.csv has %d lines, want header + 2", len(field))
	}
	if !strings.HasPrefix(field[0], "window_end,sim_time,units") {
		t.Errorf("field.csv header = %q", field[0])
	}

	production := readLines(t, filepath.Join(dir, "production.csv"))
	if len(production) != 5 {
		t.Errorf("production.csv has %d lines, want header + 4", len(production))
	}

	if lines := readLines(t, filepath.Join(dir, "predictions.csv")); len(lines) != 2 {
		t.Errorf("predictions.csv has %d lines, want 2", len(lines))
	}
	bookmarks := readLines(t, filepath.Join(dir, "bookmarks.csv"))
	if len(bookmarks) != 2 || !strings.HasPrefix(bookmarks[1], "well_dry,600,south") {
		t.Errorf("bookmarks.csv = %q", bookmarks)
	}

	if _, err := config.Load(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
}

func TestCollectorFlush(t *testing.T) {
	grid := depletion.NewUniformGrid(6, 6, 1)
	field := depletion.NewField(grid, depletion.NewCurve(1200, 0.95), depletion.Params{DepletionRadius: 1, HalfLife: 20, Spread: 1.5})
	ws := systems.NewWellSystem(ecs.NewWorld(), field)
	ws.AddWell("a", 1, 1)
	ws.AddWell("b", 4, 4)

	c := NewCollector(600, 1)
	ws.OnExtract(func(well string, x, y int, units float64) {
		c.RecordExtraction(well, units)
	})

	tick := int64(0)
	for !c.ShouldFlush(tick) {
		ws.Step(1)
		tick++
	}
	if tick != 600 {
		t.Fatalf("flushed at tick %d, want 600", tick)
	}

	stats, perWell := c.Flush(tick, field, ws.Wells())
	if stats.Units == 0 || stats.Units != stats.TotalUnits {
		t.Errorf("units = %v, total = %v", stats.Units, stats.TotalUnits)
	}
	if stats.Wells != 2 || stats.DryWells != 0 {
		t.Errorf("wells = %d, dry = %d", stats.Wells, stats.DryWells)
	}
	if stats.SimTimeSec != 600 {
		t.Errorf("sim time = %v, want 600", stats.SimTimeSec)
	}
	if stats.Remaining >= depletion.NewField(depletion.NewUniformGrid(6, 6, 1), field.Curve(), field.Params()).TotalRemaining() {
		t.Error("remaining did not drop")
	}

	var sum float64
	for _, w := range perWell {
		sum += w.Units
		if w.Saturation >= 1 {
			t.Errorf("well %s saturation %v not depleted", w.Well, w.Saturation)
		}
	}
	if sum != stats.Units {
		t.Errorf("per-well units sum %v, want %v", sum, stats.Units)
	}

	// Next window starts empty
	next, _ := c.Flush(tick+1, field, ws.Wells())
	if next.Units != 0 || next.Extractions != 0 || next.TotalUnits != stats.TotalUnits {
		t.Errorf("second window = %+v", next)
	}
}
