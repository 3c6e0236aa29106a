// Package prefs manages the durable user preferences: response language
// and the open-in-web redirect toggle.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/josephj/slack-copilot/internal/assistant"
	"github.com/josephj/slack-copilot/internal/storage"
)

// Service caches preferences in front of the store. Reads hit the cache;
// writes go through to the store and update the cache on success.
type Service struct {
	store  storage.PreferenceStore
	logger *slog.Logger

	mu      sync.RWMutex
	current storage.Preferences
}

// NewService loads preferences from the store, falling back to defaults
// when none have been saved yet.
func NewService(ctx context.Context, store storage.PreferenceStore, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		logger: logger,
		current: storage.Preferences{
			LanguageCode: assistant.DefaultLanguageCode,
		},
	}

	saved, err := store.GetPreferences(ctx)
	switch {
	case err == nil:
		// Unknown codes from an older catalogue collapse to the default.
		s.current.LanguageCode = assistant.LanguageByCode(saved.LanguageCode).Code
		s.current.OpenInWeb = saved.OpenInWeb
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return s, nil
}

// Language returns the active response language.
func (s *Service) Language() assistant.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return assistant.LanguageByCode(s.current.LanguageCode)
}

// OpenInWeb reports whether archive links should stay in the web client.
func (s *Service) OpenInWeb() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.OpenInWeb
}

// SetLanguage persists a new language code. Unknown codes are rejected
// by collapsing to the catalogue entry before saving.
func (s *Service) SetLanguage(ctx context.Context, code string) (assistant.Language, error) {
	lang := assistant.LanguageByCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current
	next.LanguageCode = lang.Code
	if err := s.store.SavePreferences(ctx, &next); err != nil {
		return lang, fmt.Errorf("failed to save language preference: %w", err)
	}
	s.current = next
	return lang, nil
}

// SetOpenInWeb persists the open-in-web toggle.
func (s *Service) SetOpenInWeb(ctx context.Context, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current
	next.OpenInWeb = value
	if err := s.store.SavePreferences(ctx, &next); err != nil {
		return fmt.Errorf("failed to save open-in-web preference: %w", err)
	}
	s.current = next
	return nil
}
