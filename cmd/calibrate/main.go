// Package main fits the production-rate half-life so that a fresh well
// produces a target output over a horizon.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/oilfield/config"
)

// EvalRecord is one row of calibrate_log.csv.
type EvalRecord struct {
	Eval      int     `csv:"eval"`
	Miss      float64 `csv:"miss"`
	HalfLife  float64 `csv:"half_life"`
	Spread    float64 `csv:"spread"`
	Predicted float64 `csv:"predicted"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	target := flag.Float64("target", 0, "Units a fresh well should produce (0 = calibrate.target_units)")
	horizon := flag.Float64("horizon", 0, "Seconds to produce them in (0 = calibrate.horizon)")
	saturation := flag.Float64("saturation", 1, "Saturation of the fresh field, in [0,1]")
	fitSpread := flag.Bool("fit-spread", false, "Fit field.spread as well as the half-life")
	maxEvals := flag.Int("max-evals", 0, "Maximum number of evaluations (0 = calibrate.max_evals)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if *outputDir == "" {
		fatal("--output is required")
	}
	if *saturation < 0 || *saturation > 1 {
		fatal("--saturation must be in [0,1]")
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fatal("failed to create output directory", "error", err)
	}

	if err := config.Init(*configPath); err != nil {
		fatal("failed to load config", "error", err)
	}
	cfg := config.Cfg()
	if *target > 0 {
		cfg.Calibrate.TargetUnits = *target
	}
	if *horizon > 0 {
		cfg.Calibrate.Horizon = *horizon
	}
	if *maxEvals > 0 {
		cfg.Calibrate.MaxEvals = *maxEvals
	}

	params := NewParamVector(cfg, *fitSpread)
	evaluator := NewEvaluator(params, cfg, *saturation)

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		fatal("failed to create log file", "error", err)
	}
	defer logFile.Close()

	headerWritten := false
	startTime := time.Now()
	observe := func(eval int, raw []float64, miss float64) {
		halfLife, spread := evaluator.unpack(raw)
		rec := []EvalRecord{{
			Eval:      eval,
			Miss:      miss,
			HalfLife:  halfLife,
			Spread:    spread,
			Predicted: evaluator.Predict(raw),
		}}
		if !headerWritten {
			err = gocsv.Marshal(rec, logFile)
			headerWritten = true
		} else {
			err = gocsv.MarshalWithoutHeaders(rec, logFile)
		}
		if err != nil {
			slog.Warn("writing eval log", "error", err)
		}

		if eval%10 == 0 {
			elapsed := time.Since(startTime)
			slog.Info("eval",
				"n", eval,
				"of", cfg.Calibrate.MaxEvals,
				"half_life", halfLife,
				"spread", spread,
				"miss", miss,
				"elapsed", formatDuration(elapsed),
			)
		}
	}

	slog.Info("starting calibration",
		"params", params.Dim(),
		"target_units", cfg.Calibrate.TargetUnits,
		"horizon", cfg.Calibrate.Horizon,
		"max_evals", cfg.Calibrate.MaxEvals,
	)

	result, err := Fit(evaluator, cfg.Calibrate.MaxEvals, observe)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}
	if result.Params == nil {
		fatal("no evaluations completed")
	}

	slog.Info("calibration complete",
		"evals", result.Evals,
		"status", result.Status.String(),
		"predicted", result.Predicted,
		"target", cfg.Calibrate.TargetUnits,
		"elapsed", formatDuration(time.Since(startTime)),
	)
	for i, spec := range params.Specs {
		slog.Info("best parameter", "name", spec.Name, "path", spec.Path, "value", result.Params[i])
	}

	// Save tuned config
	bestCfg, err := calibratedConfig(*configPath, cfg.Calibrate, params, result.Params)
	if err != nil {
		fatal("failed to reload config", "error", err)
	}

	configOutPath := filepath.Join(*outputDir, "calibrated_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		fatal("failed to write calibrated config", "error", err)
	}
	slog.Info("calibrated config saved", "path", configOutPath)
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
