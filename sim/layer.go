package sim

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/oilfield/depletion"
	"github.com/pthm-cable/oilfield/layer"
)

// ErrNoHiddenPath is returned by Hide and Show when snapshot.hidden_path is
// not configured.
var ErrNoHiddenPath = errors.New("sim: snapshot.hidden_path not set")

// Hide saves the live layer to the hidden path and empties the field. It
// refuses to run while a hidden layer is already saved.
func (s *Sim) Hide() error {
	if s.hidden == nil {
		return ErrNoHiddenPath
	}
	g := s.field.Grid()
	before := g.Clone()
	if err := layer.Hide(s.hidden, g); err != nil {
		return fmt.Errorf("hiding layer: %w", err)
	}
	s.replaced(before, g)
	s.log.Info("layer hidden", "path", s.hidden.Path, "tick", s.tick)
	return nil
}

// Show replaces the live layer with the hidden one. The hidden file is kept,
// so it must be removed before the layer can be hidden again.
func (s *Sim) Show() error {
	if s.hidden == nil {
		return ErrNoHiddenPath
	}
	g, err := layer.Show(s.hidden)
	if err != nil {
		return fmt.Errorf("showing layer: %w", err)
	}
	before := s.field.Grid()
	if bw, bh := before.Dimensions(); g.W != bw || g.H != bh {
		return fmt.Errorf("%w: hidden layer is %dx%d, field is %dx%d",
			layer.ErrInvalidSnapshot, g.W, g.H, bw, bh)
	}

	f := depletion.NewField(g, s.field.Curve(), s.field.Params())
	f.SetNotifier(s.notifier())
	s.field = f
	s.wells.SetField(f)
	s.wells.Revive()
	s.replaced(before, g)
	s.log.Info("layer shown", "path", s.hidden.Path, "tick", s.tick)
	return nil
}

// replaced records a wholesale layer change: the ledger gets every cell that
// differs and stream subscribers get a fresh grid.
func (s *Sim) replaced(before, after *depletion.Grid) {
	if s.ledger != nil {
		if changes := diff(before, after); len(changes) > 0 {
			s.ledger.OnValuesChanged(changes)
		}
	}
	if s.hub != nil {
		s.hub.Reset(after)
	}
}

// diff lists the cells of after whose value differs from before. Both grids
// must have the same dimensions.
func diff(before, after *depletion.Grid) []depletion.ValueChange {
	var out []depletion.ValueChange
	w, h := after.Dimensions()
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			if v := after.Get(x, y); v != before.Get(x, y) {
				out = append(out, depletion.ValueChange{X: x, Y: y, NewValue: v})
			}
		}
	}
	return out
}
