package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/josephj/slack-copilot/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Preferences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetPreferences(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetPreferences() on empty store error = %v, want ErrNotFound", err)
	}

	prefs := &storage.Preferences{LanguageCode: "zh-TW", OpenInWeb: true}
	if err := store.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("SavePreferences() error = %v", err)
	}

	got, err := store.GetPreferences(ctx)
	if err != nil {
		t.Fatalf("GetPreferences() error = %v", err)
	}
	if got.LanguageCode != "zh-TW" || !got.OpenInWeb {
		t.Errorf("GetPreferences() = %+v, want zh-TW/true", got)
	}

	// Saved again, the singleton row is replaced rather than duplicated.
	if err := store.SavePreferences(ctx, &storage.Preferences{LanguageCode: "ja"}); err != nil {
		t.Fatalf("SavePreferences() error = %v", err)
	}
	got, err = store.GetPreferences(ctx)
	if err != nil {
		t.Fatalf("GetPreferences() error = %v", err)
	}
	if got.LanguageCode != "ja" || got.OpenInWeb {
		t.Errorf("GetPreferences() after update = %+v, want ja/false", got)
	}
}

func TestSQLiteStore_TranscriptRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &storage.TranscriptSession{
		ID:         "sess-1",
		SourceKind: "thread",
		SourceURL:  "https://app.slack.com/client/T1/C1/thread/C1-1733882111.623399",
		Language:   "zh-TW",
	}
	if err := store.UpsertSession(ctx, session); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}

	turns := []storage.TranscriptTurn{
		{Role: "user", Content: "summarize this"},
		{Role: "assistant", Content: "the thread decides to ship friday"},
	}
	if err := store.ReplaceTurns(ctx, "sess-1", turns); err != nil {
		t.Fatalf("ReplaceTurns() error = %v", err)
	}

	got, gotTurns, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.SourceKind != "thread" || got.Language != "zh-TW" {
		t.Errorf("session = %+v", got)
	}
	if len(gotTurns) != 2 {
		t.Fatalf("turns = %d, want 2", len(gotTurns))
	}
	if gotTurns[0].Seq != 0 || gotTurns[0].Role != "user" {
		t.Errorf("first turn = %+v", gotTurns[0])
	}
	if gotTurns[1].Content != "the thread decides to ship friday" {
		t.Errorf("second turn = %+v", gotTurns[1])
	}
}

func TestSQLiteStore_ReplaceTurnsOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertSession(ctx, &storage.TranscriptSession{ID: "sess-1", SourceKind: "article", Language: "en-US"}); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}
	if err := store.ReplaceTurns(ctx, "sess-1", []storage.TranscriptTurn{
		{Role: "assistant", Content: "v1"},
		{Role: "user", Content: "more?"},
		{Role: "assistant", Content: "v2"},
	}); err != nil {
		t.Fatalf("ReplaceTurns() error = %v", err)
	}
	if err := store.ReplaceTurns(ctx, "sess-1", []storage.TranscriptTurn{
		{Role: "assistant", Content: "fresh"},
	}); err != nil {
		t.Fatalf("ReplaceTurns() error = %v", err)
	}

	_, turns, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "fresh" {
		t.Fatalf("turns after replace = %+v, want single fresh turn", turns)
	}
}

func TestSQLiteStore_GetSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetSession(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_ListSessionsOrdersByRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.UpsertSession(ctx, &storage.TranscriptSession{ID: id, SourceKind: "thread", Language: "ja"}); err != nil {
			t.Fatalf("UpsertSession(%s) error = %v", id, err)
		}
	}
	// Touch "a" so it becomes the most recent.
	if err := store.UpsertSession(ctx, &storage.TranscriptSession{ID: "a", SourceKind: "thread", Language: "ja"}); err != nil {
		t.Fatalf("UpsertSession(a) error = %v", err)
	}

	sessions, err := store.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("ListSessions() = %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "a" {
		t.Errorf("most recent session = %s, want a", sessions[0].ID)
	}
}
