package main

import (
	"github.com/pthm-cable/oilfield/config"
)

// ParamSpec defines a single fitted parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Starting value
}

// ParamVector holds the set of fitted parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the fitted parameter set: the half-life, and the
// spread when fitSpread is set.
func NewParamVector(cfg *config.Config, fitSpread bool) *ParamVector {
	c := cfg.Calibrate
	specs := []ParamSpec{
		{Name: "half_life", Path: "field.production_rate_half_life", Min: c.MinHalfLife, Max: c.MaxHalfLife, Default: c.InitHalfLife},
	}
	if fitSpread {
		specs = append(specs, ParamSpec{Name: "spread", Path: "field.spread", Min: 0.25, Max: 8, Default: cfg.Field.Spread})
	}
	return &ParamVector{Specs: specs}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the starting parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := v[i]
		if val < spec.Min {
			val = spec.Min
		}
		if val > spec.Max {
			val = spec.Max
		}
		clamped[i] = val
	}
	return clamped
}

// calibratedConfig reloads the base config, applies the fitted values, and
// keeps the calibration settings the fit ran with.
func calibratedConfig(path string, cal config.CalibrateConfig, pv *ParamVector, values []float64) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.Calibrate = cal
	pv.ApplyToConfig(cfg, values)
	return cfg, nil
}

// ApplyToConfig applies parameter values to a Config struct.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	clamped := pv.Clamp(values)
	for i, spec := range pv.Specs {
		switch spec.Name {
		case "half_life":
			cfg.Field.ProductionRateHalfLife = clamped[i]
		case "spread":
			cfg.Field.Spread = clamped[i]
		}
	}
}
