// Package ledger records extractions and the cell changes they cause in a
// SQLite database, so a run can be audited or its grid rebuilt afterwards.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/oilfield/depletion"
)

// RunInfo describes the tuning a run was started with.
type RunInfo struct {
	Width    int
	Height   int
	Curve    depletion.Curve
	Params   depletion.Params
	Snapshot string // source snapshot path, empty for generated fields
}

// Run is a stored run row.
type Run struct {
	ID        string  `db:"id"`
	StartedAt string  `db:"started_at"`
	Width     int     `db:"width"`
	Height    int     `db:"height"`
	MaxTime   float64 `db:"max_time"`
	Dampener  float64 `db:"dampener"`
	Radius    int     `db:"radius"`
	HalfLife  float64 `db:"half_life"`
	Spread    float64 `db:"spread"`
	Snapshot  string  `db:"snapshot"`
}

// Extraction is a stored extraction row.
type Extraction struct {
	ID    int64   `db:"id"`
	RunID string  `db:"run_id"`
	Tick  int64   `db:"tick"`
	Well  string  `db:"well"`
	X     int     `db:"x"`
	Y     int     `db:"y"`
	Units float64 `db:"units"`
}

// CellChange is a stored cell change row.
type CellChange struct {
	Batch int64   `db:"batch"`
	Tick  int64   `db:"tick"`
	X     int     `db:"x"`
	Y     int     `db:"y"`
	Value float64 `db:"value"`
}

// ErrNoRun is returned when recording before StartRun.
var ErrNoRun = errors.New("ledger: no run started")

// Ledger is a SQLite-backed record of one or more runs. It implements
// depletion.Notifier: every batch of value changes is written in one
// transaction.
type Ledger struct {
	db  *sqlx.DB
	log *slog.Logger

	mu    sync.Mutex
	runID string
	tick  int64
	batch int64
	err   error // first write error seen by OnValuesChanged
}

// Open opens or creates a ledger database at path.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("empty ledger path")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger pragmas: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Ledger{db: db, log: logger}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func migrate(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		max_time REAL NOT NULL,
		dampener REAL NOT NULL,
		radius INTEGER NOT NULL,
		half_life REAL NOT NULL,
		spread REAL NOT NULL,
		snapshot TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS extractions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		well TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		units REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cell_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		batch INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_extractions_run ON extractions(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_changes_cell ON cell_changes(run_id, x, y);
	`
	_, err := db.Exec(schema)
	return err
}

// StartRun records a new run and makes it current. It returns the run ID.
func (l *Ledger) StartRun(info RunInfo) (string, error) {
	id := uuid.NewString()
	_, err := l.db.Exec(`INSERT INTO runs
		(id, started_at, width, height, max_time, dampener, radius, half_life, spread, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), info.Width, info.Height,
		info.Curve.MaxTime, info.Curve.Dampener,
		info.Params.DepletionRadius, info.Params.HalfLife, info.Params.Spread,
		info.Snapshot,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	l.mu.Lock()
	l.runID = id
	l.tick = 0
	l.batch = 0
	l.mu.Unlock()

	l.log.Info("ledger run started", "run_id", id)
	return id, nil
}

// RunID returns the current run, or "" before StartRun.
func (l *Ledger) RunID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runID
}

// SetTick sets the tick stamped on subsequent records.
func (l *Ledger) SetTick(tick int64) {
	l.mu.Lock()
	l.tick = tick
	l.mu.Unlock()
}

// RecordExtraction stores one extraction request.
func (l *Ledger) RecordExtraction(well string, x, y int, units float64) error {
	l.mu.Lock()
	runID, tick := l.runID, l.tick
	l.mu.Unlock()
	if runID == "" {
		return ErrNoRun
	}

	_, err := l.db.Exec(`INSERT INTO extractions (run_id, tick, well, x, y, units) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, tick, well, x, y, units)
	if err != nil {
		return fmt.Errorf("insert extraction: %w", err)
	}
	return nil
}

// OnValuesChanged writes a batch of cell changes in one transaction. Write
// errors are logged and kept for Err, since notifiers cannot fail the
// extraction that produced the batch.
func (l *Ledger) OnValuesChanged(changes []depletion.ValueChange) {
	if err := l.writeBatch(changes); err != nil {
		l.mu.Lock()
		if l.err == nil {
			l.err = err
		}
		l.mu.Unlock()
		l.log.Error("ledger write failed", "error", err, "changes", len(changes))
	}
}

// Err returns the first error seen while writing change batches.
func (l *Ledger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Ledger) writeBatch(changes []depletion.ValueChange) error {
	l.mu.Lock()
	runID, tick := l.runID, l.tick
	l.batch++
	batch := l.batch
	l.mu.Unlock()
	if runID == "" {
		return ErrNoRun
	}

	tx, err := l.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO cell_changes (run_id, batch, tick, x, y, value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err := stmt.Exec(runID, batch, tick, c.X, c.Y, c.NewValue); err != nil {
			return fmt.Errorf("insert change: %w", err)
		}
	}
	return tx.Commit()
}

// Runs lists stored runs, oldest first.
func (l *Ledger) Runs() ([]Run, error) {
	var runs []Run
	err := l.db.Select(&runs, `SELECT id, started_at, width, height, max_time, dampener, radius, half_life, spread, snapshot
		FROM runs ORDER BY started_at, id`)
	return runs, err
}

// Extractions lists a run's extractions in order.
func (l *Ledger) Extractions(runID string) ([]Extraction, error) {
	var out []Extraction
	err := l.db.Select(&out, `SELECT id, run_id, tick, well, x, y, units
		FROM extractions WHERE run_id = ? ORDER BY id`, runID)
	return out, err
}

// CellHistory lists every recorded value of one cell in a run, oldest first.
func (l *Ledger) CellHistory(runID string, x, y int) ([]CellChange, error) {
	var out []CellChange
	err := l.db.Select(&out, `SELECT batch, tick, x, y, value
		FROM cell_changes WHERE run_id = ? AND x = ? AND y = ? ORDER BY id`, runID, x, y)
	return out, err
}

// LatestValues returns the last recorded value of every cell a run touched.
// Applying them to the run's starting grid reproduces its final state.
func (l *Ledger) LatestValues(runID string) ([]depletion.ValueChange, error) {
	var rows []CellChange
	err := l.db.Select(&rows, `SELECT c.batch, c.tick, c.x, c.y, c.value
		FROM cell_changes c
		JOIN (SELECT MAX(id) AS id FROM cell_changes WHERE run_id = ? GROUP BY x, y) latest
		ON c.id = latest.id
		ORDER BY c.x, c.y`, runID)
	if err != nil {
		return nil, err
	}
	out := make([]depletion.ValueChange, len(rows))
	for i, r := range rows {
		out[i] = depletion.ValueChange{X: r.X, Y: r.Y, NewValue: r.Value}
	}
	return out, nil
}

// Apply writes changes onto a grid.
func Apply(g *depletion.Grid, changes []depletion.ValueChange) {
	for _, c := range changes {
		g.Set(c.X, c.Y, c.NewValue)
	}
}

// TotalUnits sums the units requested by a run's extractions.
func (l *Ledger) TotalUnits(runID string) (float64, error) {
	var total float64
	err := l.db.Get(&total, `SELECT COALESCE(SUM(units), 0) FROM extractions WHERE run_id = ?`, runID)
	return total, err
}

var _ depletion.Notifier = (*Ledger)(nil)
