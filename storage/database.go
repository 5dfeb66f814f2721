// Package storage keeps an SQLite audit trail of visit outcomes. It is never
// consulted while visiting: every run starts from scratch and no session
// cookies are stored.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nikshitha/stack-daily-login/logger"
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Database wraps SQLite database operations
type Database struct {
	db     *sql.DB
	logger *logger.Logger
	loc    *time.Location
}

// Run is one pass over all sites
type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Status     string    `json:"status"` // running, ok, failed
	Error      string    `json:"error,omitempty"`
}

// Visit is the outcome of visiting one site
type Visit struct {
	ID             int64         `json:"id"`
	RunID          int64         `json:"run_id"`
	Site           string        `json:"site"`
	LoggedInBefore bool          `json:"logged_in_before"`
	LoginPerformed bool          `json:"login_performed"`
	Confirmed      bool          `json:"confirmed"`
	Calendar       string        `json:"calendar,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
	VisitedAt      time.Time     `json:"visited_at"`
}

// Run statuses
const (
	RunRunning = "running"
	RunOK      = "ok"
	RunFailed  = "failed"
)

// NewDatabase opens (creating if needed) the history database at dbPath.
// Calendar days for streaks are evaluated in loc.
func NewDatabase(dbPath string, loc *time.Location, log *logger.Logger) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer keeps SQLite happy
	db.SetMaxOpenConns(1)

	if loc == nil {
		loc = time.Local
	}
	database := &Database{
		db:     db,
		logger: log.WithModule("storage"),
		loc:    loc,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	database.logger.WithField("path", dbPath).Debug("History database ready")
	return database, nil
}

// initSchema creates the database tables if they don't exist
func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS visits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		site TEXT NOT NULL,
		logged_in_before INTEGER NOT NULL DEFAULT 0,
		login_performed INTEGER NOT NULL DEFAULT 0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		calendar TEXT,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		visited_at INTEGER NOT NULL,
		visit_date TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_visits_site_date ON visits(site, visit_date);
	CREATE INDEX IF NOT EXISTS idx_visits_visited_at ON visits(visited_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// ==============================================================================
// Runs
// ==============================================================================

// StartRun records the beginning of a run and returns its id
func (d *Database) StartRun(startedAt time.Time) (int64, error) {
	result, err := d.db.Exec(`INSERT INTO runs (started_at, status) VALUES (?, ?)`,
		startedAt.UnixMilli(), RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun marks a run finished; a nil runErr means every site was confirmed
func (d *Database) FinishRun(id int64, finishedAt time.Time, runErr error) error {
	status, msg := RunOK, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}

	_, err := d.db.Exec(`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		finishedAt.UnixMilli(), status, msg, id)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", id, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (d *Database) RecentRuns(limit int) ([]*Run, error) {
	rows, err := d.db.Query(`SELECT id, started_at, finished_at, status, error FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
			errText  sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Status, &errText); err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(started).In(d.loc)
		if finished.Valid {
			run.FinishedAt = time.UnixMilli(finished.Int64).In(d.loc)
		}
		run.Error = errText.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// ==============================================================================
// Visits
// ==============================================================================

// RecordVisit stores the outcome of one site visit
func (d *Database) RecordVisit(v *Visit) (int64, error) {
	query := `
		INSERT INTO visits (run_id, site, logged_in_before, login_performed, confirmed,
			calendar, error, duration_ms, visited_at, visit_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.Exec(query,
		v.RunID, v.Site, v.LoggedInBefore, v.LoginPerformed, v.Confirmed,
		v.Calendar, v.Error, v.Duration.Milliseconds(),
		v.VisitedAt.UnixMilli(), v.VisitedAt.In(d.loc).Format(dateLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record visit: %w", err)
	}

	id, _ := result.LastInsertId()
	d.logger.WithFields(map[string]interface{}{
		"site":      v.Site,
		"confirmed": v.Confirmed,
	}).Debug("Visit recorded")
	return id, nil
}

// RecentVisits returns up to limit visits, newest first
func (d *Database) RecentVisits(limit int) ([]*Visit, error) {
	query := `
		SELECT id, run_id, site, logged_in_before, login_performed, confirmed,
			calendar, error, duration_ms, visited_at
		FROM visits ORDER BY visited_at DESC, id DESC LIMIT ?
	`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var visits []*Visit
	for rows.Next() {
		var (
			v          Visit
			calendar   sql.NullString
			errText    sql.NullString
			durationMs int64
			visitedAt  int64
		)
		err := rows.Scan(&v.ID, &v.RunID, &v.Site, &v.LoggedInBefore, &v.LoginPerformed, &v.Confirmed,
			&calendar, &errText, &durationMs, &visitedAt)
		if err != nil {
			return nil, err
		}
		v.Calendar = calendar.String
		v.Error = errText.String
		v.Duration = time.Duration(durationMs) * time.Millisecond
		v.VisitedAt = time.UnixMilli(visitedAt).In(d.loc)
		visits = append(visits, &v)
	}
	return visits, rows.Err()
}

// Streak counts consecutive calendar days with a confirmed visit to site,
// ending today, or yesterday when today has no confirmed visit yet.
func (d *Database) Streak(site string, now time.Time) (int, error) {
	rows, err := d.db.Query(`
		SELECT DISTINCT visit_date FROM visits
		WHERE site = ? AND confirmed = 1 AND visit_date <= ?
		ORDER BY visit_date DESC
	`, site, now.In(d.loc).Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to query streak: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return 0, err
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	return countStreak(dates, now.In(d.loc)), nil
}

// countStreak walks dates (descending, unique) back from today
func countStreak(dates []string, today time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	if dates[0] != day.Format(dateLayout) {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for _, date := range dates {
		if date != day.Format(dateLayout) {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
