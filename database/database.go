package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		manifest TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		total_items INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS fetch_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		row_index INTEGER,
		identifier TEXT,
		source TEXT,
		destination TEXT NOT NULL,
		kind TEXT,
		succeeded INTEGER NOT NULL,
		http_status INTEGER,
		content_type TEXT,
		byte_size INTEGER,
		message TEXT,
		background_applied INTEGER NOT NULL DEFAULT 0,
		recorded_at TEXT,
		UNIQUE(run_id, destination)
	);
	CREATE INDEX IF NOT EXISTS idx_fetch_results_run ON fetch_results(run_id);`

	_, err = db.Exec(createTableSQL)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Check if error_kind column exists, add it if it doesn't
	var hasErrorKindColumn bool
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('fetch_results') WHERE name='error_kind'").Scan(&hasErrorKindColumn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking for error_kind column: %v", err)
	}

	if !hasErrorKindColumn {
		_, err = db.Exec("ALTER TABLE fetch_results ADD COLUMN error_kind TEXT;")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("error adding error_kind column: %v", err)
		}
		logging.DebugLog("Added 'error_kind' column to fetch_results schema")
	}

	return db, nil
}

// StartRun records the start of a run
func StartRun(db *sql.DB, runID, manifest string, totalItems int) error {
	_, err := db.Exec(`INSERT INTO runs (id, manifest, started_at, total_items) VALUES (?, ?, ?, ?)`,
		runID, manifest, time.Now().Format(time.RFC3339), totalItems)
	if err != nil {
		return fmt.Errorf("cannot record run %s: %v", runID, err)
	}
	return nil
}

// FinishRun records the end of a run
func FinishRun(db *sql.DB, runID string, cancelled bool) error {
	_, err := db.Exec(`UPDATE runs SET finished_at = ?, cancelled = ? WHERE id = ?`,
		time.Now().Format(time.RFC3339), cancelled, runID)
	if err != nil {
		return fmt.Errorf("cannot finish run %s: %v", runID, err)
	}
	return nil
}

// StoreFetchResult stores the outcome of one item; a repeated destination within a run replaces the row
func StoreFetchResult(db *sql.DB, runID string, item types.WorkItem, result types.FetchResult) error {
	stmt, err := db.Prepare(`
		INSERT OR REPLACE INTO fetch_results (
			run_id, row_index, identifier, source, destination, kind, succeeded, http_status,
			content_type, byte_size, message, background_applied, error_kind, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("cannot prepare statement for %s: %v", item.DestinationPath, err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(
		runID,
		item.RowIndex,
		item.Identifier,
		item.Source,
		item.DestinationPath,
		string(item.Kind),
		result.Succeeded,
		result.HTTPStatus,
		result.ContentType,
		result.ByteSize,
		result.Message,
		result.BackgroundApplied,
		string(result.ErrorKind),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cannot insert result for %s: %v", item.DestinationPath, err)
	}

	return nil
}

// RunStats contains statistics for a run
type RunStats struct {
	RunID             string
	TotalItems        int
	Recorded          int
	Succeeded         int
	Failed            int
	TotalBytes        int64
	BackgroundApplied int
	Cancelled         bool
}

// GetRunStats retrieves statistics about a run
func GetRunStats(db *sql.DB, runID string) (*RunStats, error) {
	stats := RunStats{RunID: runID}

	err := db.QueryRow("SELECT total_items, cancelled FROM runs WHERE id = ?", runID).
		Scan(&stats.TotalItems, &stats.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %v", runID, err)
	}

	err = db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(succeeded), 0),
		       COALESCE(SUM(CASE WHEN succeeded THEN byte_size ELSE 0 END), 0),
		       COALESCE(SUM(background_applied), 0)
		FROM fetch_results WHERE run_id = ?`, runID).
		Scan(&stats.Recorded, &stats.Succeeded, &stats.TotalBytes, &stats.BackgroundApplied)
	if err != nil {
		return nil, fmt.Errorf("failed to get results for run %s: %v", runID, err)
	}
	stats.Failed = stats.Recorded - stats.Succeeded

	return &stats, nil
}

// LatestRunID returns the most recently started run, or "" when none exists
func LatestRunID(db *sql.DB) (string, error) {
	var id string
	err := db.QueryRow("SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %v", err)
	}
	return id, nil
}

// FailureRecord is a failed item as stored
type FailureRecord struct {
	RowIndex   int
	Identifier string
	Source     string
	HTTPStatus int
	ErrorKind  string
	Message    string
}

// ListFailures returns the failed items of a run ordered by spreadsheet row
func ListFailures(db *sql.DB, runID string) ([]FailureRecord, error) {
	rows, err := db.Query(`
		SELECT row_index, identifier, source, http_status, COALESCE(error_kind, ''), message
		FROM fetch_results WHERE run_id = ? AND succeeded = 0
		ORDER BY row_index, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures for run %s: %v", runID, err)
	}
	defer rows.Close()

	var failures []FailureRecord
	for rows.Next() {
		var f FailureRecord
		if err := rows.Scan(&f.RowIndex, &f.Identifier, &f.Source, &f.HTTPStatus, &f.ErrorKind, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %v", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
