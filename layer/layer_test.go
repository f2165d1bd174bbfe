package layer

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pthm-cable/oilfield/depletion"
)

func sampleGrid() *depletion.Grid {
	return depletion.GridFromValues([][]float64{
		{1, 0.5, 0.25},
		{0, 0.75, 0.125},
	})
}

func TestValuesLayout(t *testing.T) {
	v := FromGrid(sampleGrid())
	if v.Width != 2 || v.Height != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", v.Width, v.Height)
	}
	// values[x*height+y] addresses (x,y)
	want := []float32{1, 0.5, 0.25, 0, 0.75, 0.125}
	for i := range want {
		if v.Values[i] != want[i] {
			t.Errorf("Values[%d] = %v, want %v", i, v.Values[i], want[i])
		}
	}
	if v.At(1, 1) != 0.75 {
		t.Errorf("At(1,1) = %v, want 0.75", v.At(1, 1))
	}
}

func TestValuesAsSource(t *testing.T) {
	v := Values{Width: 2, Height: 2, Values: []float32{1, 0.65, 0.2, 0}}
	f := depletion.NewFieldFromSource(v, nil, depletion.NewCurve(1200, 0.95), depletion.Params{HalfLife: 3, Spread: 1.5})
	if got := f.TotalRemaining(); math.Abs(got-18.0372) > 0.001 {
		t.Errorf("TotalRemaining() = %v, want 18.0372", got)
	}

	empty := Values{}
	if cols := empty.Columns(); cols != nil {
		t.Errorf("empty snapshot gave %v, want nil", cols)
	}
	if empty.Grid().TotalCells() != 0 {
		t.Error("empty snapshot should give a 0x0 grid")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "layer.json.zst"), true, nil)
	if s.Exists() {
		t.Fatal("fresh store reports existing file")
	}

	in := FromGrid(sampleGrid())
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists() {
		t.Fatal("Exists() false after Save")
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Width != in.Width || out.Height != in.Height || len(out.Values) != len(in.Values) {
		t.Fatalf("loaded %+v, want %+v", out, in)
	}
	for i := range in.Values {
		if out.Values[i] != in.Values[i] {
			t.Errorf("Values[%d] = %v, want %v", i, out.Values[i], in.Values[i])
		}
	}
}

func TestStoreRefusesOverwrite(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "layer.json.zst"), false, nil)
	if err := s.Save(FromGrid(sampleGrid())); err != nil {
		t.Fatal(err)
	}
	err := s.Save(FromGrid(depletion.NewGrid(1, 1)))
	if !errors.Is(err, ErrSnapshotExists) {
		t.Errorf("second Save error = %v, want ErrSnapshotExists", err)
	}

	// The first snapshot survives
	v, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if v.Width != 2 {
		t.Errorf("width = %d, want 2 from the first save", v.Width)
	}

	if err := s.Replace(FromGrid(depletion.NewGrid(1, 1))); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if v, _ := s.Load(); v.Width != 1 {
		t.Errorf("width after Replace = %d, want 1", v.Width)
	}
}

func TestStoreConcurrentSaveHasOneWinner(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "layer.json.zst"), false, nil)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each save carries its own width so the survivor is identifiable
			errs[i] = s.Save(FromGrid(depletion.NewUniformGrid(i+1, 1, 0.5)))
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner >= 0 {
				t.Fatalf("saves %d and %d both succeeded", winner, i)
			}
			winner = i
		case !errors.Is(err, ErrSnapshotExists):
			t.Errorf("save %d error = %v, want ErrSnapshotExists", i, err)
		}
	}
	if winner < 0 {
		t.Fatal("no save succeeded")
	}

	v, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if v.Width != winner+1 {
		t.Errorf("width = %d, want %d from the successful save", v.Width, winner+1)
	}

	// No temp files left beside the snapshot
	entries, err := os.ReadDir(filepath.Dir(s.Path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the snapshot", len(entries))
	}
}

func TestStoreRefusesEmptyLayer(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "layer.json.zst"), false, nil)
	for _, v := range []Values{{}, {Width: 3, Height: 0}} {
		if err := s.Save(v); !errors.Is(err, ErrInvalidSnapshot) {
			t.Errorf("Save(%dx%d) error = %v, want ErrInvalidSnapshot", v.Width, v.Height, err)
		}
	}
	if s.Exists() {
		t.Error("empty layer was written")
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "none.json.zst"), true, nil)
	if _, err := s.Load(); !errors.Is(err, ErrSnapshotMissing) {
		t.Errorf("Load error = %v, want ErrSnapshotMissing", err)
	}
	if err := s.Remove(); err != nil {
		t.Errorf("Remove on missing file: %v", err)
	}
}

func TestStoreLoadsPlainJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Oil Layer Values.json")
	// Exported layers use capitalised keys.
	data := `{"Height":2,"Width":2,"Values":[1.0,0.5,0.25,0.0]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	v, err := NewStore(path, true, nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v.Width != 2 || v.Height != 2 || v.At(0, 1) != 0.5 {
		t.Errorf("loaded %+v", v)
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json at all`},
		{"length mismatch", `{"width":2,"height":2,"values":[1,1,1]}`},
		{"out of range", `{"width":1,"height":2,"values":[1.5,0]}`},
		{"negative width", `{"width":-1,"height":0,"values":[]}`},
		{"empty layer", `{"width":0,"height":0,"values":[]}`},
		{"zero height", `{"width":3,"height":0,"values":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.json")
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := NewStore(path, true, nil).Load()
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("Load error = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(FromGrid(sampleGrid())); err != nil {
		t.Errorf("valid snapshot rejected: %v", err)
	}
	if err := Validate(Values{}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("empty snapshot error = %v, want ErrInvalidSnapshot", err)
	}
	if err := Validate(Values{Width: 1, Height: 1, Values: []float32{-0.5}}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("negative value error = %v, want ErrInvalidSnapshot", err)
	}
}

func TestHideAndShow(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "hidden.json.zst"), true, nil)
	g := sampleGrid()

	if err := Hide(s, g); err != nil {
		t.Fatalf("Hide: %v", err)
	}
	for x := 0; x < g.W; x++ {
		for y := 0; y < g.H; y++ {
			if g.Get(x, y) != 0 {
				t.Errorf("cell %d,%d = %v after hide, want 0", x, y, g.Get(x, y))
			}
		}
	}

	// Hiding again must not clobber the saved layer
	if err := Hide(s, g); !errors.Is(err, ErrSnapshotExists) {
		t.Errorf("second Hide error = %v, want ErrSnapshotExists", err)
	}

	restored, err := Show(s)
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	want := sampleGrid()
	for x := 0; x < want.W; x++ {
		for y := 0; y < want.H; y++ {
			if restored.Get(x, y) != want.Get(x, y) {
				t.Errorf("restored %d,%d = %v, want %v", x, y, restored.Get(x, y), want.Get(x, y))
			}
		}
	}
}

func TestGenerate(t *testing.T) {
	p := NoiseParams{Scale: 4, Octaves: 3, Persistence: 0.5, Contrast: 2}
	g := Generate(32, 24, 7, p)
	if w, h := g.Dimensions(); w != 32 || h != 24 {
		t.Fatalf("dims = %dx%d, want 32x24", w, h)
	}

	var sum float64
	for _, v := range g.Values() {
		if v < 0 || v > 1 {
			t.Fatalf("value %v outside [0,1]", v)
		}
		sum += v
	}
	if sum == 0 {
		t.Error("generated field is empty")
	}

	// Same seed, same field
	again := Generate(32, 24, 7, p)
	a, b := g.Values(), again.Values()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seeded generation not deterministic at %d", i)
		}
	}

	if Generate(0, 5, 1, p).TotalCells() != 0 {
		t.Error("expected empty grid for zero width")
	}
}
