package assistant

import (
	"sync"
	"time"

	"github.com/josephj/slack-copilot/internal/article"
	"github.com/josephj/slack-copilot/internal/thread"
)

// Status is the session state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStreaming Status = "streaming"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of the visible transcript. The trailing assistant
// turn is mutated in place while tokens stream in; every other turn is
// immutable once appended.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Streaming bool      `json:"streaming"`
}

// SourceKind discriminates thread captures from article captures.
type SourceKind string

const (
	SourceThread  SourceKind = "thread"
	SourceArticle SourceKind = "article"
)

// Source is the captured content a session is bound to.
type Source struct {
	Kind    SourceKind
	Thread  *thread.Snapshot
	Article *article.Data
}

// Session is the active summarization/chat context, tied to exactly one
// source snapshot and one language. A new capture or a language change
// clears the turns and bumps the generation, so turns from two sources
// or two languages never mix.
type Session struct {
	mu         sync.Mutex
	source     *Source
	language   Language
	turns      []Turn
	status     Status
	generation uint64
}

// NewSession creates an idle session in the given language.
func NewSession(language Language) *Session {
	return &Session{language: language, status: StatusIdle}
}

// Generation identifies the current source+language epoch. Responses
// minted under an older generation must be discarded.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SetSource binds the session to a new capture, clearing all turns and
// starting a new generation.
func (s *Session) SetSource(src *Source) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.turns = nil
	s.status = StatusIdle
	s.generation++
	return s.generation
}

// SetLanguage switches the session language. When the language actually
// changes and turns exist, they are cleared and a new generation starts.
func (s *Session) SetLanguage(language Language) (changed bool, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if language.Code == s.language.Code {
		return false, s.generation
	}
	s.language = language
	s.turns = nil
	s.status = StatusIdle
	s.generation++
	return true, s.generation
}

// Source returns the bound capture, if any.
func (s *Session) Source() *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Language returns the active language.
func (s *Session) Language() Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Status returns the session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// AppendTurn appends an immutable turn.
func (s *Session) AppendTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// BeginAssistantTurn appends the streaming assistant turn that
// UpdateAssistantTurn will mutate.
func (s *Session) BeginAssistantTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Streaming: true,
	})
	s.status = StatusStreaming
}

// UpdateAssistantTurn overwrites the trailing assistant turn with the
// cumulative streamed text.
func (s *Session) UpdateAssistantTurn(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleAssistant && s.turns[n-1].Streaming {
		s.turns[n-1].Content = content
	}
}

// FinishAssistantTurn seals the trailing assistant turn.
func (s *Session) FinishAssistantTurn(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleAssistant && s.turns[n-1].Streaming {
		s.turns[n-1].Content = content
		s.turns[n-1].Streaming = false
	}
	s.status = StatusIdle
}

// DropStreamingTurn removes an unfinished trailing assistant turn, used
// when a stream is aborted or superseded.
func (s *Session) DropStreamingTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleAssistant && s.turns[n-1].Streaming {
		s.turns = s.turns[:n-1]
	}
	s.status = StatusIdle
}

// UpdateIfCurrent is UpdateAssistantTurn gated on the generation, with
// the check and the write under one lock. Reports whether it applied.
func (s *Session) UpdateIfCurrent(generation uint64, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleAssistant && s.turns[n-1].Streaming {
		s.turns[n-1].Content = content
	}
	return true
}

// FinishIfCurrent is FinishAssistantTurn gated on the generation.
func (s *Session) FinishIfCurrent(generation uint64, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleAssistant && s.turns[n-1].Streaming {
		s.turns[n-1].Content = content
		s.turns[n-1].Streaming = false
	}
	s.status = StatusIdle
	return true
}

// DropIfCurrent is DropStreamingTurn gated on the generation.
func (s *Session) DropIfCurrent(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleAssistant && s.turns[n-1].Streaming {
		s.turns = s.turns[:n-1]
	}
	s.status = StatusIdle
	return true
}

// HasContent reports whether a capture is bound.
func (s *Session) HasContent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}
