package operations

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"dicommart/internal/errors"
	"dicommart/pkg/contracts/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	prefix       TEXT NOT NULL,
	status       TEXT NOT NULL,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	phases       BLOB,
	created_at   INTEGER NOT NULL,
	started_at   INTEGER,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at DESC);
CREATE TABLE IF NOT EXISTS run_failures (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	unit       TEXT NOT NULL,
	error_type TEXT NOT NULL,
	message    TEXT NOT NULL,
	at         INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);`

// SQLiteRunStore keeps the run ledger in a SQLite database. Unit failures
// live in their own table so that large runs stay queryable.
type SQLiteRunStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteRunStore opens (or creates) the ledger at path.
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	if path == "" {
		path = "runs.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !stderrors.Is(err, os.ErrExist) {
		return nil, errors.NewPersistenceError("create ledger directory", err).WithContext("path", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewPersistenceError("open ledger", err).WithContext("path", path)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.NewPersistenceError("create ledger schema", err).WithContext("path", path)
	}
	return &SQLiteRunStore{db: db, path: path}, nil
}

// Path returns the database file.
func (s *SQLiteRunStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteRunStore) Close() error { return s.db.Close() }

// CreateRun inserts a new run.
func (s *SQLiteRunStore) CreateRun(ctx context.Context, run *domain.Run) error {
	phases, err := json.Marshal(run.Phases)
	if err != nil {
		return errors.NewPersistenceError("encode phases", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO runs
			(id, prefix, status, succeeded, failed, error, phases, created_at, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Prefix, string(run.Status), run.Succeeded, run.Failed, run.Error, phases,
			toUnix(run.CreatedAt), toNullUnix(run.StartedAt), toNullUnix(run.CompletedAt))
		if err != nil {
			if isConstraint(err) {
				return errors.NewConflictError("run already exists").WithContext("run_id", run.ID)
			}
			return errors.NewPersistenceError("insert run", err).WithContext("run_id", run.ID)
		}
		return insertFailures(ctx, tx, run)
	})
}

// UpdateRun replaces a stored run and its failures.
func (s *SQLiteRunStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	phases, err := json.Marshal(run.Phases)
	if err != nil {
		return errors.NewPersistenceError("encode phases", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE runs SET
			prefix = ?, status = ?, succeeded = ?, failed = ?, error = ?, phases = ?,
			started_at = ?, completed_at = ?
			WHERE id = ?`,
			run.Prefix, string(run.Status), run.Succeeded, run.Failed, run.Error, phases,
			toNullUnix(run.StartedAt), toNullUnix(run.CompletedAt), run.ID)
		if err != nil {
			return errors.NewPersistenceError("update run", err).WithContext("run_id", run.ID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewNotFoundError("run").WithContext("run_id", run.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_failures WHERE run_id = ?`, run.ID); err != nil {
			return errors.NewPersistenceError("clear run failures", err).WithContext("run_id", run.ID)
		}
		return insertFailures(ctx, tx, run)
	})
}

// GetRun loads a run with its failures.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, prefix, status, succeeded, failed, error, phases, created_at, started_at, completed_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run").WithContext("run_id", id)
	}
	if err != nil {
		return nil, errors.NewPersistenceError("select run", err).WithContext("run_id", id)
	}

	run.Failures, err = s.failures(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first. Failures are not loaded; use GetRun
// for the full record.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*domain.Run, error) {
	query := `SELECT id, prefix, status, succeeded, failed, error, phases, created_at, started_at, completed_at
		FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("list runs", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("list runs", err)
	}
	return runs, nil
}

func (s *SQLiteRunStore) failures(ctx context.Context, runID string) ([]domain.UnitFailure, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phase, unit, error_type, message, at
		FROM run_failures WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, errors.NewPersistenceError("select run failures", err).WithContext("run_id", runID)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.UnitFailure
	for rows.Next() {
		var f domain.UnitFailure
		var at int64
		if err := rows.Scan(&f.Phase, &f.Unit, &f.ErrorType, &f.Message, &at); err != nil {
			return nil, errors.NewPersistenceError("scan run failure", err).WithContext("run_id", runID)
		}
		f.At = fromUnix(at)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteRunStore) withTx(ctx context.Context, fn func(*sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewPersistenceError("begin ledger transaction", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewPersistenceError("commit ledger transaction", err)
	}
	return nil
}

func insertFailures(ctx context.Context, tx *sql.Tx, run *domain.Run) error {
	if len(run.Failures) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_failures
		(run_id, seq, phase, unit, error_type, message, at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewPersistenceError("prepare run failures", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, f := range run.Failures {
		if _, err := stmt.ExecContext(ctx, run.ID, i, f.Phase, f.Unit, f.ErrorType, f.Message, toUnix(f.At)); err != nil {
			return errors.NewPersistenceError("insert run failure", err).WithContext("run_id", run.ID)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var (
		run                domain.Run
		status             string
		phases             []byte
		created            int64
		started, completed sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Prefix, &status, &run.Succeeded, &run.Failed, &run.Error,
		&phases, &created, &started, &completed); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.CreatedAt = fromUnix(created)
	run.StartedAt = fromNullUnix(started)
	run.CompletedAt = fromNullUnix(completed)
	if len(phases) > 0 {
		if err := json.Unmarshal(phases, &run.Phases); err != nil {
			return nil, fmt.Errorf("decode phases: %w", err)
		}
	}
	return &run, nil
}

func isConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

func toUnix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}
