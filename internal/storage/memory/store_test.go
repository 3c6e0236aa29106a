package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/josephj/slack-copilot/internal/storage"
)

func TestMemoryStore_Preferences(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetPreferences(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetPreferences() on empty store error = %v, want ErrNotFound", err)
	}

	if err := store.SavePreferences(ctx, &storage.Preferences{LanguageCode: "ko", OpenInWeb: true}); err != nil {
		t.Fatalf("SavePreferences() error = %v", err)
	}
	got, err := store.GetPreferences(ctx)
	if err != nil {
		t.Fatalf("GetPreferences() error = %v", err)
	}
	if got.LanguageCode != "ko" || !got.OpenInWeb {
		t.Errorf("GetPreferences() = %+v, want ko/true", got)
	}

	// The returned value is a copy, not shared state.
	got.LanguageCode = "mutated"
	fresh, err := store.GetPreferences(ctx)
	if err != nil {
		t.Fatalf("GetPreferences() error = %v", err)
	}
	if fresh.LanguageCode != "ko" {
		t.Errorf("stored preferences mutated through a returned copy: %+v", fresh)
	}
}

func TestMemoryStore_TranscriptRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.UpsertSession(ctx, &storage.TranscriptSession{ID: "sess-1", SourceKind: "thread", Language: "th"}); err != nil {
		t.Fatalf("UpsertSession() error = %v", err)
	}
	if err := store.ReplaceTurns(ctx, "sess-1", []storage.TranscriptTurn{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}); err != nil {
		t.Fatalf("ReplaceTurns() error = %v", err)
	}

	session, turns, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if session.SourceKind != "thread" {
		t.Errorf("session = %+v", session)
	}
	if len(turns) != 2 || turns[1].Seq != 1 {
		t.Fatalf("turns = %+v, want 2 sequenced turns", turns)
	}
}

func TestMemoryStore_GetSessionNotFound(t *testing.T) {
	store := New()

	_, _, err := store.GetSession(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetSession(missing) error = %v, want ErrNotFound", err)
	}
}
