// Package storage defines the durable stores backing preferences and
// conversation transcripts.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// Preferences are the user settings that survive restarts.
type Preferences struct {
	LanguageCode string `json:"language_code"`
	OpenInWeb    bool   `json:"open_in_web"`
}

// PreferenceStore persists the singleton preference record.
type PreferenceStore interface {
	GetPreferences(ctx context.Context) (*Preferences, error)
	SavePreferences(ctx context.Context, prefs *Preferences) error
}

// TranscriptSession is the durable header of one capture's conversation.
type TranscriptSession struct {
	ID         string
	SourceKind string
	SourceURL  string
	Language   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TranscriptTurn is one persisted transcript entry.
type TranscriptTurn struct {
	SessionID string
	Seq       int
	Role      string
	Content   string
	CreatedAt time.Time
}

// TranscriptStore persists session transcripts. Writes are best-effort
// from the caller's point of view and must never block the request path.
type TranscriptStore interface {
	UpsertSession(ctx context.Context, session *TranscriptSession) error
	ReplaceTurns(ctx context.Context, sessionID string, turns []TranscriptTurn) error
	GetSession(ctx context.Context, id string) (*TranscriptSession, []TranscriptTurn, error)
	ListSessions(ctx context.Context, limit int) ([]*TranscriptSession, error)
}

// Store bundles the two stores a backend must provide.
type Store interface {
	PreferenceStore
	TranscriptStore
	Close() error
}
