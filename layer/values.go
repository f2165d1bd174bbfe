// Package layer persists oil layer snapshots and builds initial fields.
//
// A snapshot is the record saved when the layer is hidden: width, height and
// a flat x-major array of saturations, where Values[x*Height+y] addresses
// cell (x,y).
package layer

import (
	"fmt"

	"github.com/pthm-cable/oilfield/depletion"
)

// Values is the persisted oil layer record.
type Values struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float32 `json:"values"`
}

// FromGrid copies a grid into a snapshot record.
func FromGrid(g *depletion.Grid) Values {
	w, h := g.Dimensions()
	flat := g.Values()
	v := Values{Width: w, Height: h, Values: make([]float32, len(flat))}
	for i, s := range flat {
		v.Values[i] = float32(s)
	}
	return v
}

// At returns the saturation at (x,y). Coordinates must be in range.
func (v Values) At(x, y int) float32 {
	return v.Values[x*v.Height+y]
}

// Columns returns the values as a matrix indexed [x][y], so a snapshot can be
// used directly as a depletion.Source.
func (v Values) Columns() [][]float64 {
	if v.Width <= 0 || v.Height <= 0 {
		return nil
	}
	cols := make([][]float64, v.Width)
	for x := range cols {
		cols[x] = make([]float64, v.Height)
		for y := range cols[x] {
			cols[x][y] = float64(v.At(x, y))
		}
	}
	return cols
}

// Grid builds a grid from the snapshot.
func (v Values) Grid() *depletion.Grid {
	return depletion.GridFromSource(v)
}

// Check verifies the layer is at least 1x1, the array length matches the
// dimensions, and every value is a saturation in [0,1].
func (v Values) Check() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("%w: empty layer %dx%d", ErrInvalidSnapshot, v.Width, v.Height)
	}
	if len(v.Values) != v.Width*v.Height {
		return fmt.Errorf("%w: %d values for a %dx%d layer", ErrInvalidSnapshot, len(v.Values), v.Width, v.Height)
	}
	for i, s := range v.Values {
		if s < 0 || s > 1 {
			return fmt.Errorf("%w: value %v at index %d outside [0,1]", ErrInvalidSnapshot, s, i)
		}
	}
	return nil
}

var _ depletion.Source = Values{}
