package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/josephj/slack-copilot/internal/api/chat"
)

func makeChunk(text string) *chat.CompletionChunk {
	var chunk chat.CompletionChunk
	raw := fmt.Sprintf(`{"choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, text)
	if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
		panic(err)
	}
	return &chunk
}

// fakeStreamer replays scripted chunks. The first blockN requests hang
// after their chunks until the request context is cancelled.
type fakeStreamer struct {
	mu       sync.Mutex
	requests []*chat.CompletionRequest

	chunks   []string
	startErr error
	blockN   int
}

func (f *fakeStreamer) Stream(ctx context.Context, req *chat.CompletionRequest) (<-chan chat.StreamResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := len(f.requests) <= f.blockN
	f.mu.Unlock()

	if f.startErr != nil {
		return nil, f.startErr
	}

	out := make(chan chat.StreamResult)
	go func() {
		defer close(out)
		for _, text := range f.chunks {
			select {
			case out <- chat.StreamResult{Chunk: makeChunk(text)}:
			case <-ctx.Done():
				out <- chat.StreamResult{Err: ctx.Err()}
				return
			}
		}
		if block {
			<-ctx.Done()
			out <- chat.StreamResult{Err: ctx.Err()}
		}
	}()
	return out, nil
}

func (f *fakeStreamer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestAskAccumulatesAndCompletes(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"Hel", "lo"}}
	orch := NewOrchestrator(streamer, "test-model", nil)

	var updates []string
	done := make(chan string, 1)
	orch.Ask(context.Background(), "system", "summarize", nil, Callbacks{
		OnUpdate:   func(text string) { updates = append(updates, text) },
		OnComplete: func(text string) { done <- text },
		OnError:    func(err error) { t.Errorf("unexpected OnError: %v", err) },
	})

	select {
	case final := <-done:
		if final != "Hello" {
			t.Fatalf("OnComplete text = %q, want Hello", final)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnComplete")
	}
	if len(updates) != 2 || updates[0] != "Hel" || updates[1] != "Hello" {
		t.Fatalf("updates = %v, want cumulative [Hel Hello]", updates)
	}
}

func TestAskBuildsMessageOrder(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"ok"}}
	orch := NewOrchestrator(streamer, "test-model", nil)

	prior := []chat.Message{
		{Role: chat.RoleUser, Content: "earlier question"},
		{Role: chat.RoleAssistant, Content: "earlier answer"},
	}
	done := make(chan struct{})
	orch.Ask(context.Background(), "sys", "follow-up", prior, Callbacks{
		OnComplete: func(string) { close(done) },
	})
	<-done

	req := streamer.requests[0]
	roles := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	want := []string{chat.RoleSystem, chat.RoleUser, chat.RoleAssistant, chat.RoleUser}
	if len(roles) != len(want) {
		t.Fatalf("message roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("message roles = %v, want %v", roles, want)
		}
	}
	if req.Messages[len(req.Messages)-1].Content != "follow-up" {
		t.Fatalf("last message = %q, want follow-up", req.Messages[len(req.Messages)-1].Content)
	}
}

func TestNewAskCancelsInFlightRequest(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"partial "}, blockN: 1}
	orch := NewOrchestrator(streamer, "test-model", nil)

	aborted := make(chan struct{})
	orch.Ask(context.Background(), "sys", "first", nil, Callbacks{
		OnAbort:    func() { close(aborted) },
		OnComplete: func(string) { t.Error("superseded request completed") },
	})

	// Let the first stream start before superseding it.
	deadline := time.After(2 * time.Second)
	for streamer.requestCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("first request never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	done := make(chan struct{})
	orch.Ask(context.Background(), "sys", "second", nil, Callbacks{
		OnComplete: func(string) { close(done) },
	})

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("first request was not aborted")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second request did not complete")
	}
	orch.Wait()
}

func TestAbortFiresOnAbortNotOnError(t *testing.T) {
	streamer := &fakeStreamer{blockN: 1}
	orch := NewOrchestrator(streamer, "test-model", nil)

	aborted := make(chan struct{})
	orch.Ask(context.Background(), "sys", "question", nil, Callbacks{
		OnAbort: func() { close(aborted) },
		OnError: func(err error) { t.Errorf("OnError fired for abort: %v", err) },
	})

	deadline := time.After(2 * time.Second)
	for streamer.requestCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("request never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	orch.Abort()

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("OnAbort never fired")
	}
	orch.Wait()
}

func TestStartErrorFiresOnError(t *testing.T) {
	wantErr := errors.New("connection refused")
	streamer := &fakeStreamer{startErr: wantErr}
	orch := NewOrchestrator(streamer, "test-model", nil)

	got := make(chan error, 1)
	orch.Ask(context.Background(), "sys", "question", nil, Callbacks{
		OnError: func(err error) { got <- err },
		OnAbort: func() { t.Error("OnAbort fired for a genuine failure") },
	})

	select {
	case err := <-got:
		if !errors.Is(err, wantErr) {
			t.Fatalf("OnError err = %v, want %v", err, wantErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError never fired")
	}
	orch.Wait()
}
