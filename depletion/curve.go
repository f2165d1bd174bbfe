// Package depletion models oil saturation on a toroidal grid and how it falls
// as units are extracted from it.
//
// The package is pure computation: it performs no I/O and keeps no global
// state. Callers supply the initial grid and, optionally, a Notifier that
// receives the cells changed by each extraction.
package depletion

import "math"

// Curve relates saturation, time per unit, extraction rate and the number of
// units a cell can still give up.
//
// Time per unit grows linearly as saturation falls:
//
//	time = MaxTime * (1 - Dampener*oil)
//
// Dampener must be in (0,1] so that time stays positive for oil in [0,1].
// A Curve is a value and is never modified after construction, so it can be
// shared freely between fields and goroutines.
type Curve struct {
	MaxTime  float64 // seconds per unit at zero saturation
	Dampener float64
}

// NewCurve creates a curve with the given tuning constants.
func NewCurve(maxTime, dampener float64) Curve {
	return Curve{MaxTime: maxTime, Dampener: dampener}
}

// MinTime returns the seconds per unit at full saturation.
func (c Curve) MinTime() float64 {
	return c.TimeGivenOil(1)
}

// TimeGivenOil returns the seconds needed to extract the next unit at the
// given saturation.
func (c Curve) TimeGivenOil(oil float64) float64 {
	return c.MaxTime * (1 - c.Dampener*oil)
}

// OilGivenTime is the inverse of TimeGivenOil.
func (c Curve) OilGivenTime(time float64) float64 {
	return (1 - time/c.MaxTime) / c.Dampener
}

// RateGivenTime converts seconds per unit into units per minute.
func (c Curve) RateGivenTime(time float64) float64 {
	return 60 / time
}

// TimeGivenRate converts units per minute into seconds per unit.
func (c Curve) TimeGivenRate(rate float64) float64 {
	return 60 / rate
}

// RateGivenOil returns units per minute at the given saturation.
func (c Curve) RateGivenOil(oil float64) float64 {
	return c.RateGivenTime(c.TimeGivenOil(oil))
}

// OilGivenRate returns the saturation that yields the given rate.
func (c Curve) OilGivenRate(rate float64) float64 {
	return c.OilGivenTime(c.TimeGivenRate(rate))
}

// OilAfterExtraction returns the saturation left after extracting units from a
// cell starting at oil. Time per unit doubles every halfLife units, and the
// result is clamped at zero.
//
// Applying it N times with one unit each gives the same result as a single
// call with N units.
func (c Curve) OilAfterExtraction(oil, units, halfLife float64) float64 {
	return math.Max(0, c.OilGivenTime(c.TimeGivenOil(oil)/math.Pow(0.5, units/halfLife)))
}

// BarrelsGivenOil returns how many units a cell at saturation oil can give up
// before its time per unit reaches MaxTime.
func (c Curve) BarrelsGivenOil(oil, halfLife float64) float64 {
	return halfLife * math.Log2(c.MaxTime/c.TimeGivenOil(oil))
}

// OilGivenBarrels is the inverse of BarrelsGivenOil.
func (c Curve) OilGivenBarrels(barrelsRemaining, halfLife float64) float64 {
	return c.OilGivenTime(c.MaxTime / math.Pow(2, barrelsRemaining/halfLife))
}
