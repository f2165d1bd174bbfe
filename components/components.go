// Package components defines ECS components for the well simulation.
package components

// Well holds a pump's running state.
type Well struct {
	Name     string
	Progress float64 // Pump seconds accumulated toward the next unit
	Units    float64 // Units produced so far
	Rate     float64 // Current rate in units per minute
	Dry      bool    // Nothing extractable around the well
}

// Forecast is a well's latest production prediction.
type Forecast struct {
	Horizon float64 // Seconds predicted over
	Units   int     // Whole units expected within Horizon
	Seconds float64 // Pump seconds those units take
}
