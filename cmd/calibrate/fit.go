package main

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/oilfield/config"
	"github.com/pthm-cable/oilfield/depletion"
)

// Evaluator scores parameter values by how far a fresh well's forecast lands
// from the target output.
type Evaluator struct {
	params     *ParamVector
	curve      depletion.Curve
	radius     int
	spread     float64
	saturation float64
	horizon    float64
	target     float64
}

// NewEvaluator builds an evaluator for cfg's curve, radius, and calibration
// target. The well sits on a uniform field of the given saturation.
func NewEvaluator(params *ParamVector, cfg *config.Config, saturation float64) *Evaluator {
	return &Evaluator{
		params:     params,
		curve:      cfg.Derived.Curve,
		radius:     cfg.Field.DepletionRadius,
		spread:     cfg.Field.Spread,
		saturation: saturation,
		horizon:    cfg.Calibrate.Horizon,
		target:     cfg.Calibrate.TargetUnits,
	}
}

// field builds the well's surroundings. The grid is just wide enough that the
// neighbourhood never wraps onto itself.
func (e *Evaluator) field(halfLife, spread float64) *depletion.Field {
	side := 2*e.radius + 3
	grid := depletion.NewUniformGrid(side, side, e.saturation)
	return depletion.NewField(grid, e.curve, depletion.Params{
		DepletionRadius: e.radius,
		HalfLife:        halfLife,
		Spread:          spread,
	})
}

// Predict returns the output over the horizon for raw parameter values,
// counting the unfinished unit as a fraction so the result is continuous.
func (e *Evaluator) Predict(raw []float64) float64 {
	halfLife, spread := e.unpack(e.params.Clamp(raw))
	f := e.field(halfLife, spread)
	c := centre(e.radius)

	units, elapsed := f.UnitsExtractedDuringPeriod(c, c, e.horizon)

	// Replay to find the time the next unit would take
	for i := 0; i < units; i++ {
		f.ExtractUnitsAt(c, c, 1)
	}
	next := f.NextUnitTime(c, c)
	frac := 0.0
	if next > 0 {
		frac = (e.horizon - elapsed) / next
	}
	return float64(units) + frac
}

// Evaluate returns the squared miss for raw parameter values.
func (e *Evaluator) Evaluate(raw []float64) float64 {
	d := e.Predict(raw) - e.target
	return d * d
}

func (e *Evaluator) unpack(v []float64) (halfLife, spread float64) {
	halfLife, spread = v[0], e.spread
	if len(v) > 1 {
		spread = v[1]
	}
	return halfLife, spread
}

// centre is the middle cell of the evaluation grid.
func centre(radius int) int {
	return radius + 1
}

// FitResult is the best point found.
type FitResult struct {
	Params    []float64 // Raw, clamped values in Specs order
	Predicted float64
	Miss      float64 // Squared error
	Evals     int
	Status    optimize.Status
}

// EvalFunc observes every evaluation.
type EvalFunc func(eval int, raw []float64, miss float64)

// Fit minimises the squared miss with Nelder-Mead over normalised parameters.
func Fit(e *Evaluator, maxEvals int, observe EvalFunc) (FitResult, error) {
	if e.horizon <= 0 {
		return FitResult{}, errors.New("calibrate.horizon must be > 0")
	}
	pv := e.params

	best := FitResult{Miss: math.Inf(1)}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := pv.Clamp(pv.Denormalize(x))
			miss := e.Evaluate(raw)
			best.Evals++
			if miss < best.Miss {
				best.Miss = miss
				best.Params = raw
			}
			if observe != nil {
				observe(best.Evals, raw, miss)
			}
			return miss
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 50,
		},
	}
	method := &optimize.NelderMead{}

	result, err := optimize.Minimize(problem, pv.Normalize(pv.DefaultVector()), settings, method)
	if result != nil {
		best.Status = result.Status
	}
	if best.Params == nil {
		return best, err
	}
	best.Predicted = e.Predict(best.Params)
	return best, err
}
