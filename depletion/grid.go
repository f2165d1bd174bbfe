package depletion

// Source supplies the initial saturation values for a grid.
// Columns returns a matrix indexed [x][y]; nil or empty means a 0x0 grid.
type Source interface {
	Columns() [][]float64
}

// Grid is a toroidal 2-D saturation grid. Both axes wrap, so every integer
// coordinate resolves to a cell.
//
// Storage is x-major: cell (x,y) lives at values[x*H+y], the same order used
// by persisted snapshots.
type Grid struct {
	W, H   int
	values []float64
}

// NewGrid creates a zeroed grid.
func NewGrid(w, h int) *Grid {
	if w <= 0 || h <= 0 {
		return &Grid{}
	}
	return &Grid{W: w, H: h, values: make([]float64, w*h)}
}

// NewUniformGrid creates a grid with every cell set to v.
func NewUniformGrid(w, h int, v float64) *Grid {
	g := NewGrid(w, h)
	for i := range g.values {
		g.values[i] = v
	}
	return g
}

// GridFromValues copies a matrix indexed [x][y] into a new grid. The height is
// taken from the first column; shorter columns leave zeros.
func GridFromValues(values [][]float64) *Grid {
	if len(values) == 0 || len(values[0]) == 0 {
		return &Grid{}
	}
	g := NewGrid(len(values), len(values[0]))
	for x, col := range values {
		copy(g.values[x*g.H:(x+1)*g.H], col)
	}
	return g
}

// GridFromSource reads the source once and builds a grid from it.
// A nil source gives a 0x0 grid.
func GridFromSource(src Source) *Grid {
	if src == nil {
		return &Grid{}
	}
	return GridFromValues(src.Columns())
}

// GridFromFlat builds a grid from x-major values. It returns nil when the
// slice length does not match w*h.
func GridFromFlat(w, h int, values []float64) *Grid {
	if w <= 0 || h <= 0 {
		if len(values) == 0 {
			return &Grid{}
		}
		return nil
	}
	if len(values) != w*h {
		return nil
	}
	g := NewGrid(w, h)
	copy(g.values, values)
	return g
}

// Wrap resolves any coordinate to its canonical position in [0,W)x[0,H).
func (g *Grid) Wrap(x, y int) (int, int) {
	return floorMod(x, g.W), floorMod(y, g.H)
}

// Get returns the saturation at (x,y), wrapping out-of-range coordinates.
func (g *Grid) Get(x, y int) float64 {
	x, y = g.Wrap(x, y)
	return g.values[x*g.H+y]
}

// Set stores v at (x,y), wrapping out-of-range coordinates.
func (g *Grid) Set(x, y int, v float64) {
	x, y = g.Wrap(x, y)
	g.values[x*g.H+y] = v
}

// Clone returns a deep copy that shares no storage with g.
func (g *Grid) Clone() *Grid {
	c := &Grid{W: g.W, H: g.H, values: make([]float64, len(g.values))}
	copy(c.values, g.values)
	return c
}

// Dimensions returns the grid width and height.
func (g *Grid) Dimensions() (int, int) {
	return g.W, g.H
}

// TotalCells returns W*H.
func (g *Grid) TotalCells() int {
	return g.W * g.H
}

// Values returns a copy of the cells in x-major order.
func (g *Grid) Values() []float64 {
	out := make([]float64, len(g.values))
	copy(out, g.values)
	return out
}

// Columns returns a copy of the cells as a matrix indexed [x][y].
func (g *Grid) Columns() [][]float64 {
	out := make([][]float64, g.W)
	for x := range out {
		out[x] = make([]float64, g.H)
		copy(out[x], g.values[x*g.H:(x+1)*g.H])
	}
	return out
}

// floorMod is the mathematical modulo: always in [0,m) for m > 0.
func floorMod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}
