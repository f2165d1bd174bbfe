package sim

import (
	"github.com/pthm-cable/oilfield/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (s *Sim) flushTelemetry() {
	if !s.collector.ShouldFlush(s.tick) {
		return
	}

	stats, wells := s.collector.Flush(s.tick, s.field, s.wells.Wells())
	perfStats := s.perfCollector.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := s.outputManager.WriteWindow(stats, wells); err != nil {
		s.log.Error("failed to write telemetry", "error", err)
	}
	if err := s.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		s.log.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarkDetector.Check(stats, wells) {
		if s.logStats {
			bm.LogBookmark()
		}
		if err := s.outputManager.WriteBookmark(bm); err != nil {
			s.log.Error("failed to write bookmark", "error", err)
		}
	}
}

// predict forecasts every well over the configured horizon.
func (s *Sim) predict() {
	preds := s.wells.Predict(s.cfg.Simulation.PredictionHorizon)
	if s.logStats {
		for _, p := range preds {
			s.log.Info("forecast",
				"tick", s.tick,
				"well", p.Name,
				"horizon", p.Horizon,
				"units", p.Units,
				"seconds", p.Seconds,
			)
		}
	}
	if err := s.outputManager.WritePredictions(telemetry.PredictionRecords(s.tick, preds)); err != nil {
		s.log.Error("failed to write predictions", "error", err)
	}
}
