package depletion

import "math"

// Params holds the spatial tuning of a Field.
type Params struct {
	DepletionRadius int     // hard cutoff, in cells, of an extraction's reach
	HalfLife        float64 // units extracted locally before time per unit doubles
	Spread          float64 // Gaussian sigma, in cells, shaping weight within the radius
}

// DefaultParams returns the tuning used when none is configured.
func DefaultParams() Params {
	return Params{
		DepletionRadius: 1,
		HalfLife:        2000,
		Spread:          1.5,
	}
}

// Field combines a Grid with a Curve and drains a neighbourhood of cells for
// every extraction.
//
// A Field assumes a single writer. Concurrent calls to ExtractUnitsAt on the
// same Field must be serialised by the caller.
type Field struct {
	grid  *Grid
	curve Curve

	DepletionRadius int
	HalfLife        float64
	Spread          float64

	notifier Notifier
}

// NewField creates a field that owns grid.
func NewField(grid *Grid, curve Curve, p Params) *Field {
	if grid == nil {
		grid = &Grid{}
	}
	return &Field{
		grid:            grid,
		curve:           curve,
		DepletionRadius: p.DepletionRadius,
		HalfLife:        p.HalfLife,
		Spread:          p.Spread,
	}
}

// NewFieldFromSource reads the initial values from src and reports changes to
// notifier, which may be nil.
func NewFieldFromSource(src Source, notifier Notifier, curve Curve, p Params) *Field {
	f := NewField(GridFromSource(src), curve, p)
	f.notifier = notifier
	return f
}

// Grid returns the field's grid. Callers must not write to it while the field
// is in use.
func (f *Field) Grid() *Grid { return f.grid }

// Curve returns the field's curve.
func (f *Field) Curve() Curve { return f.curve }

// Notifier returns the attached notifier, or nil.
func (f *Field) Notifier() Notifier { return f.notifier }

// SetNotifier attaches n; nil detaches.
func (f *Field) SetNotifier(n Notifier) { f.notifier = n }

// Params returns the field's spatial tuning.
func (f *Field) Params() Params {
	return Params{
		DepletionRadius: f.DepletionRadius,
		HalfLife:        f.HalfLife,
		Spread:          f.Spread,
	}
}

// Clone returns an independent copy with its own grid and no notifier.
func (f *Field) Clone() *Field {
	return NewField(f.grid.Clone(), f.curve, f.Params())
}

// ExtractUnitsAt removes units from the cells around (cx,cy).
//
// Each cell in the neighbourhood gives up a share proportional to its
// remaining units times its Gaussian weight, so the shares sum to units.
// Shares are computed from availability read before the pass; a cell asked
// for more than it holds clamps to zero.
//
// It returns the changed cells, or nil if nothing near (cx,cy) is
// extractable. The notifier, if any, receives the same batch once.
func (f *Field) ExtractUnitsAt(cx, cy int, units float64) []ValueChange {
	available, _ := f.WeightedAvailability(cx, cy)
	if available <= 0 {
		return nil
	}

	changes := make([]ValueChange, 0, f.neighbourhoodSize())
	// A radius wider than the grid reaches some cells twice; those keep one
	// entry holding the final value.
	var seen map[int]int
	if side := 2*f.DepletionRadius + 1; side > f.grid.W || side > f.grid.H {
		seen = make(map[int]int)
	}
	f.eachNeighbour(cx, cy, func(x, y, dx, dy int) {
		oil := f.grid.Get(x, y)
		share := units * (f.curve.BarrelsGivenOil(oil, f.HalfLife) * f.gaussian(dx, dy)) / available
		next := f.curve.OilAfterExtraction(oil, share, f.HalfLife)

		wx, wy := f.grid.Wrap(x, y)
		f.grid.Set(wx, wy, next)
		if seen != nil {
			key := wx*f.grid.H + wy
			if i, ok := seen[key]; ok {
				changes[i].NewValue = next
				return
			}
			seen[key] = len(changes)
		}
		changes = append(changes, ValueChange{X: wx, Y: wy, NewValue: next})
	})

	if f.notifier != nil {
		f.notifier.OnValuesChanged(changes)
	}
	return changes
}

// WeightedAvailability sums the remaining units around (cx,cy) weighted by
// distance, and the total weight used.
func (f *Field) WeightedAvailability(cx, cy int) (amount, totalWeight float64) {
	f.eachNeighbour(cx, cy, func(x, y, dx, dy int) {
		w := f.gaussian(dx, dy)
		amount += f.curve.BarrelsGivenOil(f.grid.Get(x, y), f.HalfLife) * w
		totalWeight += w
	})
	return amount, totalWeight
}

// TotalRemaining returns the units extractable from the whole grid.
func (f *Field) TotalRemaining() float64 {
	var total float64
	for _, oil := range f.grid.values {
		total += f.curve.BarrelsGivenOil(oil, f.HalfLife)
	}
	return total
}

// UnitsExtractedDuringPeriod predicts how many whole units a well at (cx,cy)
// produces in the given number of seconds, and the seconds those units take.
// It runs on a clone; the field and its notifier are not touched.
//
// The loop is bounded only by seconds divided by the curve's minimum time per
// unit; callers needing a cap must enforce it around the call.
func (f *Field) UnitsExtractedDuringPeriod(cx, cy int, seconds float64) (count int, elapsed float64) {
	sim := f.Clone()
	next := sim.curve.TimeGivenOil(sim.grid.Get(cx, cy))
	for elapsed+next <= seconds {
		elapsed += next
		sim.ExtractUnitsAt(cx, cy, 1)
		count++
		next = sim.curve.TimeGivenOil(sim.grid.Get(cx, cy))
	}
	return count, elapsed
}

// NextUnitTime returns the seconds a well at (x,y) needs for its next unit.
func (f *Field) NextUnitTime(x, y int) float64 {
	return f.curve.TimeGivenOil(f.grid.Get(x, y))
}

// RateAt returns the current extraction rate at (x,y) in units per minute.
func (f *Field) RateAt(x, y int) float64 {
	return f.curve.RateGivenOil(f.grid.Get(x, y))
}

// eachNeighbour visits cells in the square of side 2r+1 around (cx,cy) whose
// distance from the centre is at most r+0.5. x and y are unwrapped.
func (f *Field) eachNeighbour(cx, cy int, fn func(x, y, dx, dy int)) {
	r := f.DepletionRadius
	limit := float64(r) + 0.5
	for x := cx - r; x <= cx+r; x++ {
		for y := cy - r; y <= cy+r; y++ {
			dx, dy := cx-x, cy-y
			if math.Sqrt(float64(dx*dx+dy*dy)) <= limit {
				fn(x, y, dx, dy)
			}
		}
	}
}

func (f *Field) neighbourhoodSize() int {
	side := 2*f.DepletionRadius + 1
	return side * side
}

// gaussian is the isotropic 2-D kernel with sigma = Spread.
func (f *Field) gaussian(dx, dy int) float64 {
	s := f.Spread
	d2 := float64(dx*dx + dy*dy)
	return (1 / (s * math.Sqrt(2*math.Pi))) * math.Exp(-0.5*d2/(s*s))
}
