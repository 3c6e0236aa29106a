package assistant

import (
	"testing"

	"github.com/josephj/slack-copilot/internal/thread"
)

func threadSource() *Source {
	return &Source{
		Kind: SourceThread,
		Thread: &thread.Snapshot{
			ChannelID:    "C1",
			ThreadTs:     "1733882111.623399",
			MessageCount: 1,
			Messages: []thread.CanonicalMessage{
				{ID: "m1", Ts: "1733882111.623399", Author: "alice", Text: "hello"},
			},
		},
	}
}

func TestSetSourceClearsTurnsAndBumpsGeneration(t *testing.T) {
	s := NewSession(LanguageByCode(DefaultLanguageCode))
	s.AppendTurn(RoleUser, "old question")

	gen := s.Generation()
	newGen := s.SetSource(threadSource())

	if got := len(s.Turns()); got != 0 {
		t.Fatalf("Turns() after SetSource = %d turns, want 0", got)
	}
	if newGen == gen {
		t.Fatal("SetSource did not advance the generation")
	}
	if !s.HasContent() {
		t.Fatal("HasContent() = false after SetSource")
	}
}

func TestSetLanguageSameCodeIsNoOp(t *testing.T) {
	s := NewSession(LanguageByCode("ja"))
	s.SetSource(threadSource())
	s.AppendTurn(RoleAssistant, "summary")
	gen := s.Generation()

	changed, newGen := s.SetLanguage(LanguageByCode("ja"))
	if changed {
		t.Fatal("SetLanguage(same code) changed = true, want false")
	}
	if got := len(s.Turns()); got != 1 {
		t.Fatalf("Turns() after no-op language set = %d, want 1", got)
	}
	if newGen != gen {
		t.Fatal("no-op language set advanced the generation")
	}
}

func TestSetLanguageClearsTurns(t *testing.T) {
	s := NewSession(LanguageByCode(DefaultLanguageCode))
	s.SetSource(threadSource())
	s.AppendTurn(RoleAssistant, "summary")
	gen := s.Generation()

	changed, newGen := s.SetLanguage(LanguageByCode("ja"))
	if !changed {
		t.Fatal("SetLanguage(new code) changed = false, want true")
	}
	if got := len(s.Turns()); got != 0 {
		t.Fatalf("Turns() after language change = %d, want 0", got)
	}
	if newGen == gen {
		t.Fatal("language change did not advance the generation")
	}
	if s.Language().Code != "ja" {
		t.Fatalf("Language().Code = %q, want ja", s.Language().Code)
	}
}

func TestStreamingTurnLifecycle(t *testing.T) {
	s := NewSession(LanguageByCode(DefaultLanguageCode))
	s.SetSource(threadSource())

	s.BeginAssistantTurn()
	s.UpdateAssistantTurn("partial")
	turns := s.Turns()
	if len(turns) != 1 || !turns[0].Streaming || turns[0].Content != "partial" {
		t.Fatalf("streaming turn = %+v, want streaming partial", turns)
	}
	if s.Status() != StatusStreaming {
		t.Fatalf("Status() = %v, want streaming", s.Status())
	}

	s.FinishAssistantTurn("final text")
	turns = s.Turns()
	if len(turns) != 1 || turns[0].Streaming || turns[0].Content != "final text" {
		t.Fatalf("finished turn = %+v, want non-streaming final", turns)
	}
	if s.Status() != StatusIdle {
		t.Fatalf("Status() after finish = %v, want idle", s.Status())
	}
}

func TestDropStreamingTurn(t *testing.T) {
	s := NewSession(LanguageByCode(DefaultLanguageCode))
	s.SetSource(threadSource())
	s.AppendTurn(RoleUser, "question")
	s.BeginAssistantTurn()
	s.UpdateAssistantTurn("half an ans")

	s.DropStreamingTurn()

	turns := s.Turns()
	if len(turns) != 1 || turns[0].Role != RoleUser {
		t.Fatalf("turns after drop = %+v, want only the user turn", turns)
	}
	if s.Status() != StatusIdle {
		t.Fatalf("Status() after drop = %v, want idle", s.Status())
	}
}

func TestLanguageByCodeFallback(t *testing.T) {
	if got := LanguageByCode("xx").Code; got != DefaultLanguageCode {
		t.Fatalf("LanguageByCode(xx).Code = %q, want %q", got, DefaultLanguageCode)
	}
	if got := LanguageByCode("ja").Name; got == "" {
		t.Fatal("LanguageByCode(ja) has empty name")
	}
}
