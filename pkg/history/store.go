// Package history keeps a local SQLite record of submitted jobs so a job id
// can be traced back to the script and flags that produced it.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/koa-cli/koa/pkg/errors"
)

const (
	// DefaultFileName is the database file inside the koa config directory.
	DefaultFileName = "history.db"

	// DefaultListLimit caps List when no limit is given.
	DefaultListLimit = 20

	// timeLayout is fixed width so timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Record is one submission.
type Record struct {
	ID          string    `json:"id" yaml:"id"`
	JobID       string    `json:"jobId" yaml:"jobId"`
	Host        string    `json:"host" yaml:"host"`
	User        string    `json:"user" yaml:"user"`
	Script      string    `json:"script" yaml:"script"`
	Partition   string    `json:"partition" yaml:"partition"`
	Gres        string    `json:"gres,omitempty" yaml:"gres,omitempty"`
	CommandLine []string  `json:"commandLine" yaml:"commandLine"`
	SubmittedAt time.Time `json:"submittedAt" yaml:"submittedAt"`
}

// Store is a history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to create history directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to open history database", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to initialize history database", err)
	}
	return &Store{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const createSubmissions = `
CREATE TABLE IF NOT EXISTS submissions (
  id           TEXT PRIMARY KEY,
  job_id       TEXT NOT NULL,
  host         TEXT NOT NULL,
  user         TEXT NOT NULL,
  script       TEXT,
  slurm_partition TEXT,
  gres         TEXT,
  command_line TEXT,
  submitted_at TEXT NOT NULL
);`
	const createJobIndex = `CREATE INDEX IF NOT EXISTS submissions_job ON submissions (host, job_id);`

	for _, stmt := range []string{createSubmissions, createJobIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores r, assigning an ID and timestamp when unset.
func (s *Store) Add(ctx context.Context, r *Record) error {
	if r == nil || r.JobID == "" {
		return errors.New(errors.ErrCodeInvalidRequest, "history record needs a job id")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now().UTC()
	}

	cmd, err := json.Marshal(r.CommandLine)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to encode command line", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO submissions (id, job_id, host, user, script, slurm_partition, gres, command_line, submitted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobID, r.Host, r.User, r.Script, r.Partition, r.Gres, string(cmd),
		r.SubmittedAt.UTC().Format(timeLayout))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to record submission", err)
	}
	return nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, job_id, host, user, script, slurm_partition, gres, command_line, submitted_at
FROM submissions ORDER BY submitted_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to query history", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to read history", err)
	}
	return records, nil
}

// FindByJobID returns the latest record for jobID on host, or nil.
func (s *Store) FindByJobID(ctx context.Context, host, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, job_id, host, user, script, slurm_partition, gres, command_line, submitted_at
FROM submissions WHERE host = ? AND job_id = ? ORDER BY submitted_at DESC LIMIT 1`, host, jobID)

	r, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		r                            Record
		script, partition, gres, cmd sql.NullString
		submitted                    string
	)
	if err := sc.Scan(&r.ID, &r.JobID, &r.Host, &r.User, &script, &partition, &gres, &cmd, &submitted); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to scan history row", err)
	}
	r.Script = script.String
	r.Partition = partition.String
	r.Gres = gres.String
	if cmd.Valid && cmd.String != "" {
		if err := json.Unmarshal([]byte(cmd.String), &r.CommandLine); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("corrupt command line in record %s", r.ID), err)
		}
	}
	t, err := time.Parse(timeLayout, submitted)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("corrupt timestamp in record %s", r.ID), err)
	}
	r.SubmittedAt = t
	return &r, nil
}
