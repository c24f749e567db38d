// Package history persists answered questions in SQLite so past
// answers can be browsed and re-read without booting an agent.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Entry is one answered question.
type Entry struct {
	ID           string
	WorkspaceKey string
	Question     string
	Answer       string
	Provider     string
	Model        string
	AnswerTokens int
	Duration     time.Duration
	CreatedAt    time.Time
}

// Store is the SQLite-backed history log, WAL mode.
type Store struct {
	db   *sql.DB
	path string
}

func NewStore(dbPath string) (*Store, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("history db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS answers (
		id            TEXT PRIMARY KEY,
		workspace_key TEXT NOT NULL,
		question      TEXT NOT NULL,
		answer        TEXT NOT NULL DEFAULT '',
		provider      TEXT NOT NULL DEFAULT '',
		model         TEXT NOT NULL DEFAULT '',
		answer_tokens INTEGER NOT NULL DEFAULT 0,
		duration_ms   INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_answers_workspace ON answers(workspace_key, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one answered question. Missing id, token count and
// timestamp are filled in.
func (s *Store) Append(e Entry) (Entry, error) {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.AnswerTokens == 0 {
		e.AnswerTokens = CountTokens(e.Answer)
	}

	_, err := s.db.Exec(`
		INSERT INTO answers (id, workspace_key, question, answer, provider, model, answer_tokens, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkspaceKey, e.Question, e.Answer, e.Provider, e.Model,
		e.AnswerTokens, e.Duration.Milliseconds(), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, fmt.Errorf("insert answer: %w", err)
	}
	return e, nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, workspace_key, question, answer, provider, model, answer_tokens, duration_ms, created_at
		FROM answers ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForWorkspace returns a workspace's entries, most recent first.
func (s *Store) ForWorkspace(key string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, workspace_key, question, answer, provider, model, answer_tokens, duration_ms, created_at
		FROM answers WHERE workspace_key = ? ORDER BY created_at DESC, id LIMIT ?`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Get loads one entry by id.
func (s *Store) Get(id string) (Entry, error) {
	row := s.db.QueryRow(`
		SELECT id, workspace_key, question, answer, provider, model, answer_tokens, duration_ms, created_at
		FROM answers WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, fmt.Errorf("history entry %q not found", id)
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var createdAt string
	var durationMS int64
	if err := row.Scan(&e.ID, &e.WorkspaceKey, &e.Question, &e.Answer,
		&e.Provider, &e.Model, &e.AnswerTokens, &durationMS, &createdAt); err != nil {
		return Entry{}, err
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err == nil {
		e.CreatedAt = ts
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
