package systems

import (
	"runtime"
	"sync"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/oilfield/components"
	"github.com/pthm-cable/oilfield/depletion"
)

// parallelThreshold is the minimum well count to forecast in parallel.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 4

// forecastJob captures one well for forecasting.
type forecastJob struct {
	Entity ecs.Entity
	Name   string
	X, Y   int
}

// forecastChunk runs jobs[start:end] against field. Each forecast works on
// its own clone, so chunks may run concurrently while nothing writes to field.
func forecastChunk(field *depletion.Field, jobs []forecastJob, out []Prediction, horizon float64, start, end int) {
	for i := start; i < end; i++ {
		j := jobs[i]
		units, seconds := field.UnitsExtractedDuringPeriod(j.X, j.Y, horizon)
		out[i] = Prediction{
			Name:    j.Name,
			X:       j.X,
			Y:       j.Y,
			Horizon: horizon,
			Units:   units,
			Seconds: seconds,
		}
	}
}

// forecastParallel splits jobs across GOMAXPROCS workers.
func forecastParallel(field *depletion.Field, jobs []forecastJob, out []Prediction, horizon float64) {
	n := len(jobs)
	numWorkers := runtime.GOMAXPROCS(0)
	chunkSize := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			forecastChunk(field, jobs, out, horizon, start, end)
		}()
	}
	wg.Wait()
}

// Predict forecasts each well's whole units over horizon seconds, as if it
// pumped alone. Each well's Forecast is updated; the field is not changed.
func (s *WellSystem) Predict(horizon float64) []Prediction {
	// Phase A: snapshot wells (single-threaded)
	var jobs []forecastJob
	query := s.filter.Query()
	for query.Next() {
		pos, well, _ := query.Get()
		jobs = append(jobs, forecastJob{Entity: query.Entity(), Name: well.Name, X: pos.X, Y: pos.Y})
	}
	if len(jobs) == 0 {
		return nil
	}

	// Phase B: forecast
	out := make([]Prediction, len(jobs))
	if len(jobs) < parallelThreshold {
		forecastChunk(s.field, jobs, out, horizon, 0, len(jobs))
	} else {
		forecastParallel(s.field, jobs, out, horizon)
	}

	// Phase C: write forecasts back to components
	for i, j := range jobs {
		if f := s.forecasts.Get(j.Entity); f != nil {
			*f = components.Forecast{Horizon: horizon, Units: out[i].Units, Seconds: out[i].Seconds}
		}
	}
	return out
}
