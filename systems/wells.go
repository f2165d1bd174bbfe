package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/oilfield/components"
	"github.com/pthm-cable/oilfield/depletion"
)

// ExtractionFunc is called for every unit a well extracts.
type ExtractionFunc func(well string, x, y int, units float64)

// WellState is a read-only view of one well.
type WellState struct {
	Name     string
	X, Y     int
	Progress float64
	Units    float64
	Rate     float64
	Dry      bool
	Forecast components.Forecast
}

// Prediction is a well's expected production over a horizon.
type Prediction struct {
	Name    string
	X, Y    int
	Horizon float64
	Units   int
	Seconds float64
}

// WellSystem pumps every well entity against a shared field.
//
// Wells take turns in world iteration order. Each extracts one unit whenever
// its accumulated pump time reaches the time per unit at its cell. A well
// whose neighbourhood holds nothing is marked dry and stops accumulating.
type WellSystem struct {
	world  *ecs.World
	field  *depletion.Field
	mapper *ecs.Map3[components.Position, components.Well, components.Forecast]
	filter *ecs.Filter3[components.Position, components.Well, components.Forecast]

	forecasts *ecs.Map1[components.Forecast]

	onExtract ExtractionFunc
	elapsed   float64
}

// NewWellSystem creates a well system in world draining field.
func NewWellSystem(world *ecs.World, field *depletion.Field) *WellSystem {
	return &WellSystem{
		world:  world,
		field:  field,
		mapper: ecs.NewMap3[components.Position, components.Well, components.Forecast](world),
		filter: ecs.NewFilter3[components.Position, components.Well, components.Forecast](world),

		forecasts: ecs.NewMap1[components.Forecast](world),
	}
}

// OnExtract sets the hook called after each extracted unit.
func (s *WellSystem) OnExtract(fn ExtractionFunc) { s.onExtract = fn }

// Field returns the field the wells drain.
func (s *WellSystem) Field() *depletion.Field { return s.field }

// SetField switches the wells to a new field, keeping their state.
func (s *WellSystem) SetField(f *depletion.Field) { s.field = f }

// Elapsed returns the total pump seconds stepped.
func (s *WellSystem) Elapsed() float64 { return s.elapsed }

// AddWell places a well at (x,y).
func (s *WellSystem) AddWell(name string, x, y int) ecs.Entity {
	pos := components.Position{X: x, Y: y}
	well := components.Well{Name: name, Rate: s.field.RateAt(x, y)}
	forecast := components.Forecast{}
	return s.mapper.NewEntity(&pos, &well, &forecast)
}

// RemoveWell removes every well with the given name and reports whether any
// was found.
func (s *WellSystem) RemoveWell(name string) bool {
	var toRemove []ecs.Entity
	query := s.filter.Query()
	for query.Next() {
		_, well, _ := query.Get()
		if well.Name == name {
			toRemove = append(toRemove, query.Entity())
		}
	}
	for _, e := range toRemove {
		s.world.RemoveEntity(e)
	}
	return len(toRemove) > 0
}

// Step advances every well by dt seconds of pump time and returns the units
// extracted.
func (s *WellSystem) Step(dt float64) float64 {
	s.elapsed += dt
	var produced float64

	query := s.filter.Query()
	for query.Next() {
		pos, well, _ := query.Get()
		if well.Dry {
			continue
		}
		well.Progress += dt

		for {
			need := s.field.NextUnitTime(pos.X, pos.Y)
			if well.Progress < need {
				break
			}
			if s.field.ExtractUnitsAt(pos.X, pos.Y, 1) == nil {
				well.Dry = true
				well.Progress = 0
				break
			}
			well.Progress -= need
			well.Units++
			produced++
			if s.onExtract != nil {
				s.onExtract(well.Name, pos.X, pos.Y, 1)
			}
		}
		well.Rate = s.field.RateAt(pos.X, pos.Y)
	}
	return produced
}

// Wells lists every well's state in iteration order.
func (s *WellSystem) Wells() []WellState {
	var out []WellState
	query := s.filter.Query()
	for query.Next() {
		pos, well, forecast := query.Get()
		out = append(out, WellState{
			Name:     well.Name,
			X:        pos.X,
			Y:        pos.Y,
			Progress: well.Progress,
			Units:    well.Units,
			Rate:     well.Rate,
			Dry:      well.Dry,
			Forecast: *forecast,
		})
	}
	return out
}

// Revive clears the dry flag on every well, for use after the field is
// replaced.
func (s *WellSystem) Revive() {
	query := s.filter.Query()
	for query.Next() {
		pos, well, _ := query.Get()
		well.Dry = false
		well.Rate = s.field.RateAt(pos.X, pos.Y)
	}
}
