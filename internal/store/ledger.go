// Package store persists the launch ledger: one row per launch attempt so
// an operator can reconstruct what happened on a lab machine after the fact.
//
// The ledger is bookkeeping only. Nothing in the launch sequence reads it
// back or branches on it; in particular the experiment's exit code is
// recorded here but never interpreted.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"labrat/internal/logging"
)

// Launch outcomes as stored in the ledger.
const (
	OutcomeStarted   = "started"   // row created, sequence still running
	OutcomeHalted    = "halted"    // version gate stopped the sequence
	OutcomeFailed    = "failed"    // infrastructure failure before or during launch
	OutcomeCompleted = "completed" // experiment process came back, any exit code
)

// Launch is one recorded launch attempt.
type Launch struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
	Home          string    `json:"home"`
	LabelerID     string    `json:"labeler_id,omitempty"`
	PythonPath    string    `json:"python_path,omitempty"`
	PythonVersion string    `json:"python_version,omitempty"`
	VersionOK     bool      `json:"version_ok"`

	// Exit codes are nil until the corresponding step has run. They are
	// kept for the record; the launcher never branches on either one.
	InstallExitCode    *int          `json:"install_exit_code,omitempty"`
	InstallDuration    time.Duration `json:"install_duration,omitempty"`
	ExperimentExitCode *int          `json:"experiment_exit_code,omitempty"`
	ExperimentDuration time.Duration `json:"experiment_duration,omitempty"`

	Outcome    string `json:"outcome"`
	HaltReason string `json:"halt_reason,omitempty"`
}

// Finished reports whether the launch row has been closed out.
func (l *Launch) Finished() bool {
	return !l.FinishedAt.IsZero()
}

// Ledger is the SQLite-backed launch history.
type Ledger struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLedger opens (creating if necessary) the ledger database at the given path.
func NewLedger(path string) (*Ledger, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLedger")
	defer timer.Stop()

	logging.Store("Opening launch ledger at path: %s", path)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	logging.StoreDebug("Opened SQLite database connection")

	ledger := &Ledger{db: db, dbPath: path}
	if err := ledger.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Ledger schema initialized")

	return ledger, nil
}

// initialize creates the required tables.
func (l *Ledger) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS launches (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		home TEXT NOT NULL,
		labeler_id TEXT,
		python_path TEXT,
		python_version TEXT,
		version_ok BOOLEAN NOT NULL DEFAULT 0,
		install_exit_code INTEGER,
		install_ms INTEGER,
		experiment_exit_code INTEGER,
		experiment_ms INTEGER,
		outcome TEXT NOT NULL DEFAULT 'started',
		halt_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_launches_started ON launches(started_at);
	CREATE INDEX IF NOT EXISTS idx_launches_labeler ON launches(labeler_id);
	CREATE INDEX IF NOT EXISTS idx_launches_outcome ON launches(outcome);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Close closes the ledger database connection.
func (l *Ledger) Close() error {
	logging.Store("Closing launch ledger database connection")
	return l.db.Close()
}

// Path returns the ledger database location.
func (l *Ledger) Path() string {
	return l.dbPath
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// BeginLaunch records the start of a launch sequence and returns the new row.
// The labeler id may be empty when the operator launches without one.
func (l *Ledger) BeginLaunch(home, labelerID string) (*Launch, error) {
	timer := logging.StartTimer(logging.CategoryStore, "BeginLaunch")
	defer timer.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()

	launch := &Launch{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Home:      home,
		LabelerID: labelerID,
		Outcome:   OutcomeStarted,
	}

	_, err := l.db.Exec(`
		INSERT INTO launches (id, started_at, home, labeler_id, outcome)
		VALUES (?, ?, ?, ?, ?)`,
		launch.ID, launch.StartedAt, launch.Home, launch.LabelerID, launch.Outcome,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to record launch start: %v", err)
		return nil, fmt.Errorf("failed to record launch start: %w", err)
	}

	logging.StoreDebug("Launch recorded: id=%s home=%s labeler=%s", launch.ID, home, labelerID)
	return launch, nil
}

// RecordVersionCheck stores the version gate outcome for a launch.
func (l *Ledger) RecordVersionCheck(id, pythonPath, pythonVersion string, ok bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		UPDATE launches SET python_path = ?, python_version = ?, version_ok = ?
		WHERE id = ?`,
		pythonPath, pythonVersion, ok, id,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to record version check for %s: %v", id, err)
		return fmt.Errorf("failed to record version check: %w", err)
	}

	logging.StoreDebug("Version check recorded: id=%s version=%s ok=%v", id, pythonVersion, ok)
	return nil
}

// RecordInstall stores the dependency install step's exit code and duration.
func (l *Ledger) RecordInstall(id string, exitCode int, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		UPDATE launches SET install_exit_code = ?, install_ms = ?
		WHERE id = ?`,
		exitCode, d.Milliseconds(), id,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to record install for %s: %v", id, err)
		return fmt.Errorf("failed to record install: %w", err)
	}

	logging.StoreDebug("Install recorded: id=%s exit=%d duration=%v", id, exitCode, d)
	return nil
}

// RecordExperiment stores the experiment process's exit code and duration.
// The code is kept for the trail only.
func (l *Ledger) RecordExperiment(id string, exitCode int, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		UPDATE launches SET experiment_exit_code = ?, experiment_ms = ?
		WHERE id = ?`,
		exitCode, d.Milliseconds(), id,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to record experiment for %s: %v", id, err)
		return fmt.Errorf("failed to record experiment: %w", err)
	}

	logging.StoreDebug("Experiment recorded: id=%s exit=%d duration=%v", id, exitCode, d)
	return nil
}

// FinishLaunch closes out a launch row with its final outcome. The halt
// reason is only meaningful for halted and failed outcomes.
func (l *Ledger) FinishLaunch(id, outcome, haltReason string) error {
	timer := logging.StartTimer(logging.CategoryStore, "FinishLaunch")
	defer timer.Stop()

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(`
		UPDATE launches SET finished_at = ?, outcome = ?, halt_reason = ?
		WHERE id = ?`,
		time.Now().UTC(), outcome, haltReason, id,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to finish launch %s: %v", id, err)
		return fmt.Errorf("failed to finish launch: %w", err)
	}

	logging.Store("Launch finished: id=%s outcome=%s", id, outcome)
	return nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// RecentLaunches returns the most recent launches, newest first.
func (l *Ledger) RecentLaunches(limit int) ([]Launch, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RecentLaunches")
	defer timer.Stop()

	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	logging.StoreDebug("Retrieving recent launches (limit=%d)", limit)

	rows, err := l.db.Query(`
		SELECT id, started_at, finished_at, home, labeler_id, python_path,
		       python_version, version_ok, install_exit_code, install_ms,
		       experiment_exit_code, experiment_ms, outcome, halt_reason
		FROM launches
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to retrieve launches: %v", err)
		return nil, err
	}
	defer rows.Close()

	launches, err := l.scanLaunches(rows)
	if err == nil {
		logging.StoreDebug("Retrieved %d launches", len(launches))
	}
	return launches, err
}

// LabelerLaunches returns a labeler's launches, newest first.
func (l *Ledger) LabelerLaunches(labelerID string, limit int) ([]Launch, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.Query(`
		SELECT id, started_at, finished_at, home, labeler_id, python_path,
		       python_version, version_ok, install_exit_code, install_ms,
		       experiment_exit_code, experiment_ms, outcome, halt_reason
		FROM launches
		WHERE labeler_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, labelerID, limit)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to retrieve launches for labeler=%s: %v", labelerID, err)
		return nil, err
	}
	defer rows.Close()

	return l.scanLaunches(rows)
}

// GetLaunch returns a single launch by id.
func (l *Ledger) GetLaunch(id string) (*Launch, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.Query(`
		SELECT id, started_at, finished_at, home, labeler_id, python_path,
		       python_version, version_ok, install_exit_code, install_ms,
		       experiment_exit_code, experiment_ms, outcome, halt_reason
		FROM launches
		WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	launches, err := l.scanLaunches(rows)
	if err != nil {
		return nil, err
	}
	if len(launches) == 0 {
		return nil, fmt.Errorf("launch %s not found", id)
	}
	return &launches[0], nil
}

// GetStats returns row counts broken down by outcome, plus the total.
func (l *Ledger) GetStats() (map[string]int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "GetStats")
	defer timer.Stop()

	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]int64)

	var total int64
	if err := l.db.QueryRow("SELECT COUNT(*) FROM launches").Scan(&total); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to count launches: %v", err)
		return nil, err
	}
	stats["total"] = total

	rows, err := l.db.Query("SELECT outcome, COUNT(*) FROM launches GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			continue
		}
		stats[outcome] = count
	}

	logging.StoreDebug("Ledger stats computed: total=%d", total)
	return stats, nil
}

// scanLaunches converts result rows into Launch values. Rows that fail to
// scan are skipped rather than failing the whole read.
func (l *Ledger) scanLaunches(rows *sql.Rows) ([]Launch, error) {
	var launches []Launch
	for rows.Next() {
		var la Launch
		var finishedAt sql.NullTime
		var labelerID, pythonPath, pythonVersion, haltReason sql.NullString
		var installExit, installMs, experimentExit, experimentMs sql.NullInt64

		err := rows.Scan(
			&la.ID, &la.StartedAt, &finishedAt, &la.Home, &labelerID,
			&pythonPath, &pythonVersion, &la.VersionOK, &installExit,
			&installMs, &experimentExit, &experimentMs, &la.Outcome, &haltReason,
		)
		if err != nil {
			logging.StoreDebug("Skipping unreadable launch row: %v", err)
			continue
		}

		// Handle nullable fields
		if finishedAt.Valid {
			la.FinishedAt = finishedAt.Time
		}
		if labelerID.Valid {
			la.LabelerID = labelerID.String
		}
		if pythonPath.Valid {
			la.PythonPath = pythonPath.String
		}
		if pythonVersion.Valid {
			la.PythonVersion = pythonVersion.String
		}
		if haltReason.Valid {
			la.HaltReason = haltReason.String
		}
		if installExit.Valid {
			code := int(installExit.Int64)
			la.InstallExitCode = &code
		}
		if installMs.Valid {
			la.InstallDuration = time.Duration(installMs.Int64) * time.Millisecond
		}
		if experimentExit.Valid {
			code := int(experimentExit.Int64)
			la.ExperimentExitCode = &code
		}
		if experimentMs.Valid {
			la.ExperimentDuration = time.Duration(experimentMs.Int64) * time.Millisecond
		}

		launches = append(launches, la)
	}

	return launches, rows.Err()
}
