package plans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS plans (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	title      TEXT NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	steps      TEXT NOT NULL DEFAULT '[]',
	files      TEXT NOT NULL DEFAULT '[]',
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_plans_session ON plans(session_id, created_at);
`

// SQLiteStore persists plans so another process (a second terminal, an
// editor integration) can approve them.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	sessionID string
}

func sqliteDSN(file string) string {
	params := make(url.Values)
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_txlock", "immediate")
	return "file:" + file + "?" + params.Encode()
}

// OpenSQLite opens (creating if needed) the plan database at path, scoped to
// sessionID.
func OpenSQLite(ctx context.Context, path, sessionID string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create plans schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path, sessionID: sessionID}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, p Plan) (Plan, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	p.ID = uuid.NewString()
	p.SessionID = s.sessionID
	p.Status = StatusPending
	p.CreatedAt, p.UpdatedAt = now, now

	steps, err := json.Marshal(nonNil(p.Steps))
	if err != nil {
		return Plan{}, fmt.Errorf("failed to marshal steps: %w", err)
	}
	files, err := json.Marshal(nonNil(p.Files))
	if err != nil {
		return Plan{}, fmt.Errorf("failed to marshal files: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans(id, session_id, title, summary, steps, files, status, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SessionID, p.Title, p.Summary, string(steps), string(files), string(p.Status),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return Plan{}, fmt.Errorf("failed to insert plan: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, title, summary, steps, files, status, created_at, updated_at
		 FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) ActivePlans(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, title, summary, steps, files, status, created_at, updated_at
		 FROM plans WHERE session_id = ? ORDER BY created_at, rowid`, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns plans across all sessions, newest first.
func (s *SQLiteStore) List(ctx context.Context, status Status) ([]Plan, error) {
	query := `SELECT id, session_id, title, summary, steps, files, status, created_at, updated_at FROM plans`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM plans WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := checkTransition(id, Status(current), status); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plans SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().UnixMilli(), id); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(sc scanner) (Plan, error) {
	var (
		p                  Plan
		steps, files, stat string
		created, updated   int64
	)
	if err := sc.Scan(&p.ID, &p.SessionID, &p.Title, &p.Summary, &steps, &files, &stat, &created, &updated); err != nil {
		return Plan{}, err
	}
	if err := json.Unmarshal([]byte(steps), &p.Steps); err != nil {
		return Plan{}, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &p.Files); err != nil {
		return Plan{}, fmt.Errorf("failed to unmarshal files: %w", err)
	}
	p.Status = Status(stat)
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
