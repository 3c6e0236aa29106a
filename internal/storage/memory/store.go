package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/josephj/slack-copilot/internal/storage"
)

// Store is an in-memory implementation of PreferenceStore and
// TranscriptStore, used for tests and `storage.type: memory`.
type Store struct {
	mu       sync.RWMutex
	prefs    *storage.Preferences
	sessions map[string]*storage.TranscriptSession
	turns    map[string][]storage.TranscriptTurn
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*storage.TranscriptSession),
		turns:    make(map[string][]storage.TranscriptTurn),
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) GetPreferences(ctx context.Context) (*storage.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.prefs == nil {
		return nil, storage.ErrNotFound
	}
	copied := *s.prefs
	return &copied, nil
}

func (s *Store) SavePreferences(ctx context.Context, prefs *storage.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *prefs
	s.prefs = &copied
	return nil
}

func (s *Store) UpsertSession(ctx context.Context, session *storage.TranscriptSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.sessions[session.ID]; ok {
		session.CreatedAt = existing.CreatedAt
	} else if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *Store) ReplaceTurns(ctx context.Context, sessionID string, turns []storage.TranscriptTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]storage.TranscriptTurn, len(turns))
	copy(copied, turns)
	for i := range copied {
		copied[i].SessionID = sessionID
		copied[i].Seq = i
		if copied[i].CreatedAt.IsZero() {
			copied[i].CreatedAt = time.Now()
		}
	}
	s.turns[sessionID] = copied
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*storage.TranscriptSession, []storage.TranscriptTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	copiedSession := *session
	turns := make([]storage.TranscriptTurn, len(s.turns[id]))
	copy(turns, s.turns[id])
	return &copiedSession, turns, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]*storage.TranscriptSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	result := make([]*storage.TranscriptSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
