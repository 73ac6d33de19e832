package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a session id has no run row.
var ErrRunNotFound = errors.New("run not found")

// Entry is one recorded command.
type Entry struct {
	ID         int64
	SessionID  string
	ReceivedAt time.Time
	Command    []byte
	Size       int
	Sentinel   bool
}

// Run is one daemon lifetime.
type Run struct {
	SessionID string
	PID       int
	Pipe      string
	StartedAt time.Time
	StoppedAt time.Time
	// Reason is empty while the run is active.
	Reason string
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun records the beginning of a daemon run.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (session_id, pid, pipe, started_at) VALUES (?, ?, ?, ?)`,
		run.SessionID, run.PID, run.Pipe, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stamps the stop time and reason on a run.
func (s *Store) FinishRun(ctx context.Context, sessionID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET stopped_at = ?, reason = ? WHERE session_id = ?`,
		formatTime(time.Now()), reason, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", sessionID, ErrRunNotFound)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, pid, pipe, started_at, stopped_at, reason FROM runs ORDER BY started_at DESC LIMIT 1`)
	var (
		run     Run
		started string
		stopped sql.NullString
		reason  sql.NullString
	)
	if err := row.Scan(&run.SessionID, &run.PID, &run.Pipe, &started, &stopped, &reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	if stopped.Valid {
		run.StoppedAt = parseTime(stopped.String)
	}
	run.Reason = reason.String
	return &run, nil
}

// Record appends a command and returns its id.
func (s *Store) Record(ctx context.Context, entry Entry) (int64, error) {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}
	if entry.Size == 0 {
		entry.Size = len(entry.Command)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO commands (session_id, received_at, command, size, sentinel) VALUES (?, ?, ?, ?, ?)`,
		entry.SessionID, formatTime(entry.ReceivedAt), entry.Command, entry.Size, boolToInt(entry.Sentinel),
	)
	if err != nil {
		return 0, fmt.Errorf("insert command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit commands, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, received_at, command, size, sentinel FROM commands ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			received string
			sentinel int
		)
		if err := rows.Scan(&entry.ID, &entry.SessionID, &received, &entry.Command, &entry.Size, &sentinel); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		entry.ReceivedAt = parseTime(received)
		entry.Sentinel = sentinel != 0
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored commands.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM commands`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count commands: %w", err)
	}
	return n, nil
}

// Prune keeps the newest keep commands and deletes the rest. keep <= 0
// disables pruning.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM commands WHERE id NOT IN (SELECT id FROM commands ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune commands: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
