// Package store persists background copy jobs in sqlite so they survive the
// process that queued them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/justyntemme/fexplorer/internal/debug"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Finished reports whether no further transition will happen.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one queued copy.
type Job struct {
	ID        string
	Source    string
	Dest      string
	Status    Status
	Result    string // path of the copy when done
	ErrKind   string // error kind when failed
	ErrMsg    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

type DB struct {
	conn *sql.DB
}

// Open initializes the database connection and schema
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		// WAL mode allows simultaneous readers and writers
		"PRAGMA journal_mode=WAL;",
		// Synchronous NORMAL is safe against app crashes, faster than FULL
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		source     TEXT NOT NULL,
		dest       TEXT NOT NULL,
		status     TEXT NOT NULL,
		result     TEXT NOT NULL DEFAULT '',
		err_kind   TEXT NOT NULL DEFAULT '',
		err_msg    TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS jobs_status ON jobs(status, seq);
	`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, err
	}

	debug.Log(debug.STORE, "opened %s", dbPath)
	return &DB{conn: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.conn.Close()
}

// InsertJob stores a new job. CreatedAt and UpdatedAt default to now.
func (d *DB) InsertJob(ctx context.Context, j Job) error {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO jobs (id, source, dest, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Source, j.Dest, string(j.Status), j.CreatedAt.UnixNano(), now.UnixNano())
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	debug.Log(debug.STORE, "inserted job %s", j.ID)
	return nil
}

// ClaimNext marks the oldest pending job running and returns it. ok is false
// when nothing is pending.
func (d *DB) ClaimNext(ctx context.Context) (j Job, ok bool, err error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectJob+` WHERE status = ? ORDER BY seq LIMIT 1`, string(StatusPending))
	j, err = scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}

	j.Status = StatusRunning
	j.UpdatedAt = time.Now()
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(j.Status), j.UpdatedAt.UnixNano(), j.ID); err != nil {
		return Job{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Job{}, false, err
	}
	debug.Log(debug.STORE, "claimed job %s", j.ID)
	return j, true, nil
}

// FinishJob records the outcome of a job.
func (d *DB) FinishJob(ctx context.Context, j Job) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result = ?, err_kind = ?, err_msg = ?, updated_at = ? WHERE id = ?`,
		string(j.Status), j.Result, j.ErrKind, j.ErrMsg, time.Now().UnixNano(), j.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", j.ID, ErrNotFound)
	}
	return nil
}

// GetJob returns the job with id.
func (d *DB) GetJob(ctx context.Context, id string) (Job, error) {
	j, err := scanJob(d.conn.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return j, err
}

// ListJobs returns every job in queue order.
func (d *DB) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := d.conn.QueryContext(ctx, selectJob+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ResetRunning puts jobs left running by a previous process back to pending.
func (d *DB) ResetRunning(ctx context.Context) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		string(StatusPending), time.Now().UnixNano(), string(StatusRunning))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectJob = `SELECT id, source, dest, status, result, err_kind, err_msg, created_at, updated_at FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (Job, error) {
	var (
		j                Job
		status           string
		created, updated int64
	)
	if err := s.Scan(&j.ID, &j.Source, &j.Dest, &status, &j.Result, &j.ErrKind, &j.ErrMsg, &created, &updated); err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	j.CreatedAt = time.Unix(0, created)
	j.UpdatedAt = time.Unix(0, updated)
	return j, nil
}
