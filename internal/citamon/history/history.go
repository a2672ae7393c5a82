// Package history records every probe and notification attempt in a local
// SQLite database so past runs can be reviewed with `citamon history`.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/citamon/citamon/internal/citamon/checker"
	"github.com/citamon/citamon/internal/citamon/notify"
	"github.com/citamon/citamon/internal/log"

	// Import pure-Go SQLite driver for database/sql (no CGO required)
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// DB wraps the history database. A nil or disabled DB accepts every call and
// records nothing.
type DB struct {
	db      *sql.DB
	mu      sync.RWMutex
	enabled bool
	path    string
}

// Check is one recorded probe.
type Check struct {
	ID        int64
	CheckedAt time.Time
	Outcome   checker.Outcome
	ExitCode  int
	Duration  time.Duration
	Detail    string
}

// Notification is one recorded channel attempt.
type Notification struct {
	ID      int64
	SentAt  time.Time
	Kind    string
	Channel string
	Success bool
	Skipped bool
	Error   string
}

// New creates a history database handle. Nothing is opened until Init.
func New(dbPath string, enabled bool) *DB {
	return &DB{
		path:    dbPath,
		enabled: enabled,
	}
}

// Init opens the database and creates the tables.
func (d *DB) Init() error {
	if d == nil || !d.enabled {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.path), 0750); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn := d.path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with a single writer
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping history database: %w", err)
	}

	d.mu.Lock()
	d.db = db
	d.mu.Unlock()

	if err := d.createTables(); err != nil {
		return fmt.Errorf("failed to create history tables: %w", err)
	}

	log.Debug("History database ready: %s", d.path)
	return nil
}

func (d *DB) createTables() error {
	db := d.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	createChecks := `
		CREATE TABLE IF NOT EXISTS checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			checked_at TEXT NOT NULL,
			outcome TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			detail TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_checks_checked_at ON checks(checked_at);
	`

	createNotifications := `
		CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sent_at TEXT NOT NULL,
			kind TEXT NOT NULL,
			channel TEXT NOT NULL,
			success INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_sent_at ON notifications(sent_at);
	`

	if _, err := db.Exec(createChecks); err != nil {
		return fmt.Errorf("failed to create checks table: %w", err)
	}
	if _, err := db.Exec(createNotifications); err != nil {
		return fmt.Errorf("failed to create notifications table: %w", err)
	}
	return nil
}

// RecordCheck stores one probe result.
func (d *DB) RecordCheck(at time.Time, res checker.Result) error {
	db := d.GetDB()
	if db == nil {
		return nil
	}

	_, err := db.Exec(
		`INSERT INTO checks (checked_at, outcome, exit_code, duration_ms, detail) VALUES (?, ?, ?, ?, ?)`,
		at.UTC().Format(timeLayout), res.Outcome.String(), res.ExitCode, res.Duration.Milliseconds(), res.Detail(),
	)
	if err != nil {
		return fmt.Errorf("failed to record check: %w", err)
	}
	return nil
}

// RecordReport stores one row per channel of a fan-out.
func (d *DB) RecordReport(at time.Time, kind notify.Kind, report notify.Report) error {
	db := d.GetDB()
	if db == nil {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt := `INSERT INTO notifications (sent_at, kind, channel, success, skipped, error) VALUES (?, ?, ?, ?, ?, ?)`
	for _, r := range report.Results {
		var errMsg sql.NullString
		if r.Err != nil && !r.Skipped {
			errMsg = sql.NullString{String: r.Err.Error(), Valid: true}
		}
		if _, err := tx.Exec(stmt, at.UTC().Format(timeLayout), kind.String(), r.Channel, r.OK(), r.Skipped, errMsg); err != nil {
			return fmt.Errorf("failed to record %s notification: %w", r.Channel, err)
		}
	}
	return tx.Commit()
}

// RecentChecks returns up to limit probes, newest first.
func (d *DB) RecentChecks(limit int) ([]Check, error) {
	db := d.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(`
		SELECT id, checked_at, outcome, exit_code, duration_ms, detail
		FROM checks
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var checks []Check
	for rows.Next() {
		var c Check
		var at, outcome string
		var durationMS int64
		var detail sql.NullString
		if err := rows.Scan(&c.ID, &at, &outcome, &c.ExitCode, &durationMS, &detail); err != nil {
			return nil, err
		}
		c.CheckedAt, _ = time.Parse(timeLayout, at)
		c.Outcome = checker.ParseOutcome(outcome)
		c.Duration = time.Duration(durationMS) * time.Millisecond
		c.Detail = detail.String
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// RecentNotifications returns up to limit channel attempts, newest first.
func (d *DB) RecentNotifications(limit int) ([]Notification, error) {
	db := d.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(`
		SELECT id, sent_at, kind, channel, success, skipped, error
		FROM notifications
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Notification
	for rows.Next() {
		var n Notification
		var at string
		var errMsg sql.NullString
		if err := rows.Scan(&n.ID, &at, &n.Kind, &n.Channel, &n.Success, &n.Skipped, &errMsg); err != nil {
			return nil, err
		}
		n.SentAt, _ = time.Parse(timeLayout, at)
		n.Error = errMsg.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

// GetDB returns the underlying connection, or nil when disabled or closed.
func (d *DB) GetDB() *sql.DB {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// IsEnabled returns whether the database is enabled
func (d *DB) IsEnabled() bool {
	return d != nil && d.enabled
}
