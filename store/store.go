// Package store persists processed runs and the branch-call audit trail in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: not found")

// Run represents a row in the runs table.
type Run struct {
	ID              string    `json:"id"`
	ImageRef        string    `json:"image_ref"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Tags            []string  `json:"tags"`
	TagCount        int       `json:"tag_count"`
	TotalCost       float64   `json:"total_cost"`
	ElapsedMS       int64     `json:"elapsed_ms"`
	TaxonomyVersion string    `json:"taxonomy_version"`
	CreatedAt       time.Time `json:"created_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// BranchCall represents a row in the branch_calls table.
type BranchCall struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id"`
	Branch           string    `json:"branch"`
	Status           string    `json:"status"`
	Model            string    `json:"model,omitempty"`
	Instruction      string    `json:"instruction"`
	Response         string    `json:"response"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Cost             float64   `json:"cost"`
	ElapsedMS        int64     `json:"elapsed_ms"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Stats summarises the runs table.
type Stats struct {
	Runs        int     `json:"runs"`
	Succeeded   int     `json:"succeeded"`
	BranchCalls int     `json:"branch_calls"`
	TotalCost   float64 `json:"total_cost"`
}

// Store wraps the SQLite database for all vistag persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Run operations ---

// RecordRun inserts or replaces a run.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, image_ref, status, error, tags, tag_count, total_cost, elapsed_ms, taxonomy_version, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			tags = excluded.tags,
			tag_count = excluded.tag_count,
			total_cost = excluded.total_cost,
			elapsed_ms = excluded.elapsed_ms,
			completed_at = excluded.completed_at
	`, r.ID, r.ImageRef, r.Status, r.Error, string(tagsJSON), r.TagCount, r.TotalCost, r.ElapsedMS,
		r.TaxonomyVersion, r.CreatedAt.UTC(), nullTime(r.CompletedAt))
	return err
}

const runColumns = `id, image_ref, status, error, tags, tag_count, total_cost, elapsed_ms,
	COALESCE(taxonomy_version, ''), created_at, completed_at`

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r         Run
		tagsJSON  string
		errText   sql.NullString
		completed sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.ImageRef, &r.Status, &errText, &tagsJSON, &r.TagCount,
		&r.TotalCost, &r.ElapsedMS, &r.TaxonomyVersion, &r.CreatedAt, &completed); err != nil {
		return nil, err
	}
	r.Error = errText.String
	if completed.Valid {
		r.CompletedAt = completed.Time
	}
	if err := json.Unmarshal([]byte(tagsJSON), &r.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of run %s: %w", r.ID, err)
	}
	return &r, nil
}

// --- Audit operations ---

// RecordBranchCall appends one audit row. Returns the row ID.
func (s *Store) RecordBranchCall(ctx context.Context, c BranchCall) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO branch_calls (run_id, branch, status, model, instruction, response,
			prompt_tokens, completion_tokens, cost, elapsed_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.RunID, c.Branch, c.Status, c.Model, c.Instruction, c.Response,
		c.PromptTokens, c.CompletionTokens, c.Cost, c.ElapsedMS, c.Error, c.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// BranchCalls returns the audit rows for one run in insertion order.
func (s *Store) BranchCalls(ctx context.Context, runID string) ([]BranchCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, branch, status, COALESCE(model, ''), instruction, COALESCE(response, ''),
			prompt_tokens, completion_tokens, cost, elapsed_ms, COALESCE(error, ''), created_at
		FROM branch_calls WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []BranchCall
	for rows.Next() {
		var c BranchCall
		if err := rows.Scan(&c.ID, &c.RunID, &c.Branch, &c.Status, &c.Model, &c.Instruction,
			&c.Response, &c.PromptTokens, &c.CompletionTokens, &c.Cost, &c.ElapsedMS,
			&c.Error, &c.CreatedAt); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// Stats returns run and cost totals.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(total_cost), 0)
		FROM runs
	`)
	if err := row.Scan(&st.Runs, &st.Succeeded, &st.TotalCost); err != nil {
		return nil, fmt.Errorf("summarising runs: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM branch_calls").Scan(&st.BranchCalls); err != nil {
		return nil, fmt.Errorf("counting branch calls: %w", err)
	}
	return st, nil
}

// --- helpers ---

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
