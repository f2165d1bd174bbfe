package ledger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/oilfield/depletion"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func testInfo(g *depletion.Grid) RunInfo {
	return RunInfo{
		Width:  g.W,
		Height: g.H,
		Curve:  depletion.NewCurve(1200, 0.95),
		Params: depletion.Params{DepletionRadius: 1, HalfLife: 4, Spread: 1.5},
	}
}

func TestRecordBeforeRun(t *testing.T) {
	l := openTest(t)
	if err := l.RecordExtraction("w", 0, 0, 1); !errors.Is(err, ErrNoRun) {
		t.Errorf("RecordExtraction error = %v, want ErrNoRun", err)
	}
	l.OnValuesChanged([]depletion.ValueChange{{X: 0, Y: 0, NewValue: 0.5}})
	if !errors.Is(l.Err(), ErrNoRun) {
		t.Errorf("Err() = %v, want ErrNoRun", l.Err())
	}
}

func TestRunsAndExtractions(t *testing.T) {
	l := openTest(t)
	g := depletion.NewUniformGrid(4, 4, 1)

	id, err := l.StartRun(testInfo(g))
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if id == "" || l.RunID() != id {
		t.Fatalf("RunID() = %q, want %q", l.RunID(), id)
	}

	l.SetTick(3)
	if err := l.RecordExtraction("north", 1, 2, 1); err != nil {
		t.Fatal(err)
	}
	l.SetTick(7)
	if err := l.RecordExtraction("south", 3, 0, 2.5); err != nil {
		t.Fatal(err)
	}

	ex, err := l.Extractions(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(ex) != 2 {
		t.Fatalf("got %d extractions, want 2", len(ex))
	}
	if ex[0].Well != "north" || ex[0].Tick != 3 || ex[0].X != 1 || ex[0].Y != 2 {
		t.Errorf("first extraction = %+v", ex[0])
	}
	if ex[1].Units != 2.5 || ex[1].Tick != 7 {
		t.Errorf("second extraction = %+v", ex[1])
	}

	total, err := l.TotalUnits(id)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3.5 {
		t.Errorf("TotalUnits = %v, want 3.5", total)
	}

	runs, err := l.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].HalfLife != 4 || runs[0].Width != 4 {
		t.Errorf("Runs() = %+v", runs)
	}
}

func TestLedgerRebuildsGrid(t *testing.T) {
	l := openTest(t)
	start := depletion.NewUniformGrid(5, 5, 1)
	info := testInfo(start)

	f := depletion.NewField(start.Clone(), info.Curve, info.Params)
	f.SetNotifier(l)

	id, err := l.StartRun(info)
	if err != nil {
		t.Fatal(err)
	}
	for tick := int64(1); tick <= 4; tick++ {
		l.SetTick(tick)
		f.ExtractUnitsAt(0, 0, 3)
	}
	if err := l.Err(); err != nil {
		t.Fatalf("ledger write error: %v", err)
	}

	// Corner cell was rewritten in every batch
	hist, err := l.CellHistory(id, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 4 {
		t.Fatalf("got %d history rows, want 4", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Value >= hist[i-1].Value {
			t.Errorf("history not decreasing at %d: %v then %v", i, hist[i-1].Value, hist[i].Value)
		}
		if hist[i].Batch != hist[i-1].Batch+1 {
			t.Errorf("batch %d follows %d", hist[i].Batch, hist[i-1].Batch)
		}
	}
	if hist[3].Tick != 4 {
		t.Errorf("last tick = %d, want 4", hist[3].Tick)
	}

	latest, err := l.LatestValues(id)
	if err != nil {
		t.Fatal(err)
	}
	// radius 1 reaches the full 3x3 block, wrapped around the corner
	if len(latest) != 9 {
		t.Errorf("got %d latest values, want 9", len(latest))
	}

	rebuilt := start.Clone()
	Apply(rebuilt, latest)
	want := f.Grid()
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			if rebuilt.Get(x, y) != want.Get(x, y) {
				t.Errorf("rebuilt %d,%d = %v, want %v", x, y, rebuilt.Get(x, y), want.Get(x, y))
			}
		}
	}
}

func TestRunsAreSeparate(t *testing.T) {
	l := openTest(t)
	g := depletion.NewUniformGrid(3, 3, 1)

	first, err := l.StartRun(testInfo(g))
	if err != nil {
		t.Fatal(err)
	}
	l.OnValuesChanged([]depletion.ValueChange{{X: 1, Y: 1, NewValue: 0.5}})

	second, err := l.StartRun(testInfo(g))
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("runs share an ID")
	}
	l.OnValuesChanged([]depletion.ValueChange{{X: 2, Y: 2, NewValue: 0.25}})

	a, _ := l.LatestValues(first)
	b, _ := l.LatestValues(second)
	if len(a) != 1 || a[0].X != 1 {
		t.Errorf("first run values = %+v", a)
	}
	if len(b) != 1 || b[0].X != 2 || b[0].NewValue != 0.25 {
		t.Errorf("second run values = %+v", b)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Error("expected error for empty path")
	}
}
