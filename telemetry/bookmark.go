package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkWellDry          BookmarkType = "well_dry"
	BookmarkRateHalved       BookmarkType = "rate_halved"
	BookmarkHalfDepleted     BookmarkType = "half_depleted"
	BookmarkProductionDrop   BookmarkType = "production_drop"
	BookmarkProductionSteady BookmarkType = "production_steady"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int64        `csv:"tick"`
	Well        string       `csv:"well"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"well", b.Well,
		"description", b.Description,
	)
}

// BookmarkDetector detects milestones in a run's production.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	initialRemaining float64
	halfReported     bool

	// Per-well state
	dry       map[string]bool
	firstRate map[string]float64
	halved    map[string]bool

	steadyWindowsCount int
}

// NewBookmarkDetector creates a detector with the given history size.
// initialRemaining is the field's extractable total at the start of the run.
func NewBookmarkDetector(historySize int, initialRemaining float64) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for steady production detection
	}
	return &BookmarkDetector{
		history:          make([]WindowStats, historySize),
		historySize:      historySize,
		initialRemaining: initialRemaining,
		dry:              make(map[string]bool),
		firstRate:        make(map[string]float64),
		halved:           make(map[string]bool),
	}
}

// Check analyzes the latest window and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats, wells []WellWindow) []Bookmark {
	var bookmarks []Bookmark

	for _, w := range wells {
		if b := bd.checkWellDry(stats, w); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkRateHalved(stats, w); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	if b := bd.checkHalfDepleted(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if bd.historyFull || bd.historyIdx > 0 {
		// Production drop: window output < half the rolling average
		if b := bd.checkProductionDrop(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Steady production: low variance over 5+ windows
		if b := bd.checkProductionSteady(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkWellDry(stats WindowStats, w WellWindow) *Bookmark {
	if !w.Dry || bd.dry[w.Well] {
		return nil
	}
	bd.dry[w.Well] = true
	return &Bookmark{
		Type:        BookmarkWellDry,
		Tick:        stats.WindowEndTick,
		Well:        w.Well,
		Description: fmt.Sprintf("Well %s at %d,%d ran dry after %.0f units", w.Well, w.X, w.Y, w.TotalUnits),
	}
}

func (bd *BookmarkDetector) checkRateHalved(stats WindowStats, w WellWindow) *Bookmark {
	first, ok := bd.firstRate[w.Well]
	if !ok {
		bd.firstRate[w.Well] = w.Rate
		return nil
	}
	if bd.halved[w.Well] || first <= 0 || w.Rate > first/2 {
		return nil
	}
	bd.halved[w.Well] = true
	return &Bookmark{
		Type:        BookmarkRateHalved,
		Tick:        stats.WindowEndTick,
		Well:        w.Well,
		Description: fmt.Sprintf("Well %s rate fell from %.3f to %.3f units/min", w.Well, first, w.Rate),
	}
}

func (bd *BookmarkDetector) checkHalfDepleted(stats WindowStats) *Bookmark {
	if bd.halfReported || bd.initialRemaining <= 0 || stats.Remaining > bd.initialRemaining/2 {
		return nil
	}
	bd.halfReported = true
	return &Bookmark{
		Type:        BookmarkHalfDepleted,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Field remaining %.1f is below half of initial %.1f", stats.Remaining, bd.initialRemaining),
	}
}

func (bd *BookmarkDetector) checkProductionDrop(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.Units
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	if stats.Units < avg*0.5 {
		return &Bookmark{
			Type:        BookmarkProductionDrop,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Window output %.1f is %.0f%% of average (%.1f)", stats.Units, stats.Units/avg*100, avg),
		}
	}

	return nil
}

func (bd *BookmarkDetector) checkProductionSteady(stats WindowStats) *Bookmark {
	if stats.Units <= 0 {
		bd.steadyWindowsCount = 0
		return nil
	}

	history := bd.getHistory()
	if len(history) < 4 {
		return nil
	}

	recent := history[len(history)-4:]
	var sum float64
	for _, h := range recent {
		sum += h.Units
	}
	mean := sum / 4

	var variance float64
	for _, h := range recent {
		d := h.Units - mean
		variance += d * d
	}
	variance /= 4

	// Low variance: coefficient of variation < 10%
	if mean > 0 && variance/(mean*mean) < 0.01 {
		bd.steadyWindowsCount++
	} else {
		bd.steadyWindowsCount = 0
	}

	if bd.steadyWindowsCount == 5 { // trigger exactly once at 5 windows
		return &Bookmark{
			Type:        BookmarkProductionSteady,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Steady output of about %.1f units per window over 5+ windows", mean),
		}
	}

	return nil
}
