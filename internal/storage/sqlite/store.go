package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/josephj/slack-copilot/internal/storage"
)

// Store is a SQLite implementation of PreferenceStore and TranscriptStore.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath with WAL enabled and
// initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			language_code TEXT NOT NULL,
			open_in_web INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source_kind TEXT NOT NULL,
			source_url TEXT,
			language TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, seq),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetPreferences(ctx context.Context) (*storage.Preferences, error) {
	var prefs storage.Preferences
	err := s.db.QueryRowContext(ctx,
		`SELECT language_code, open_in_web FROM preferences WHERE id = 1`,
	).Scan(&prefs.LanguageCode, &prefs.OpenInWeb)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &prefs, nil
}

func (s *Store) SavePreferences(ctx context.Context, prefs *storage.Preferences) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (id, language_code, open_in_web, updated_at)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   language_code = excluded.language_code,
		   open_in_web = excluded.open_in_web,
		   updated_at = excluded.updated_at`,
		prefs.LanguageCode, prefs.OpenInWeb, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func (s *Store) UpsertSession(ctx context.Context, session *storage.TranscriptSession) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source_kind, source_url, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source_kind = excluded.source_kind,
		   source_url = excluded.source_url,
		   language = excluded.language,
		   updated_at = excluded.updated_at`,
		session.ID, session.SourceKind, session.SourceURL, session.Language,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *Store) ReplaceTurns(ctx context.Context, sessionID string, turns []storage.TranscriptTurn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}
	for i, turn := range turns {
		createdAt := turn.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, i, turn.Role, turn.Content, createdAt,
		); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*storage.TranscriptSession, []storage.TranscriptTurn, error) {
	var session storage.TranscriptSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_kind, source_url, language, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.SourceKind, &session.SourceURL, &session.Language,
		&session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, role, content, created_at FROM turns WHERE session_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []storage.TranscriptTurn
	for rows.Next() {
		var turn storage.TranscriptTurn
		if err := rows.Scan(&turn.SessionID, &turn.Seq, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return &session, turns, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*storage.TranscriptSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_kind, source_url, language, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*storage.TranscriptSession
	for rows.Next() {
		var session storage.TranscriptSession
		if err := rows.Scan(&session.ID, &session.SourceKind, &session.SourceURL,
			&session.Language, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}
