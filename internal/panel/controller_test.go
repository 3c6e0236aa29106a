package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/josephj/slack-copilot/internal/api/chat"
	"github.com/josephj/slack-copilot/internal/assistant"
	"github.com/josephj/slack-copilot/internal/prefs"
	"github.com/josephj/slack-copilot/internal/relay"
	"github.com/josephj/slack-copilot/internal/storage/memory"
	"github.com/josephj/slack-copilot/internal/thread"
)

type fakeStreamer struct {
	mu       sync.Mutex
	requests []*chat.CompletionRequest
	chunks   []string
	blockN   int
}

func (f *fakeStreamer) Stream(ctx context.Context, req *chat.CompletionRequest) (<-chan chat.StreamResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := len(f.requests) <= f.blockN
	f.mu.Unlock()

	out := make(chan chat.StreamResult)
	go func() {
		defer close(out)
		for _, text := range f.chunks {
			var chunk chat.CompletionChunk
			raw := fmt.Sprintf(`{"choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, text)
			if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
				panic(err)
			}
			select {
			case out <- chat.StreamResult{Chunk: &chunk}:
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

func (f *fakeStreamer) request(i int) *chat.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

type fixture struct {
	controller *Controller
	streamer   *fakeStreamer
	bus        *relay.Bus
	inbox      chan relay.Message
}

func newFixture(t *testing.T, streamer *fakeStreamer) *fixture {
	t.Helper()
	store := memory.New()
	preferences, err := prefs.NewService(context.Background(), store, nil)
	if err != nil {
		t.Fatalf("prefs.NewService() error = %v", err)
	}
	bus := relay.NewBus(nil)
	orch := assistant.NewOrchestrator(streamer, "test-model", nil)
	controller := NewController(orch, bus, preferences, store, nil)

	inbox := make(chan relay.Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go controller.Run(ctx, inbox)

	return &fixture{controller: controller, streamer: streamer, bus: bus, inbox: inbox}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func threadResult(url string) relay.Message {
	return relay.Message{
		Type: relay.TypeThreadDataResult,
		From: relay.ContextPage,
		Payload: relay.ThreadDataResult{
			URL: url,
			Snapshot: &thread.Snapshot{
				ChannelID:    "C1",
				ThreadTs:     "1733882111.623399",
				MessageCount: 1,
				Messages: []thread.CanonicalMessage{
					{ID: "m1", Ts: "1733882111.623399", Author: "alice", Text: "ship friday?"},
				},
			},
		},
	}
}

func TestThreadResultSchedulesOneInitialAnalysis(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"the thread ", "is about shipping"}}
	f := newFixture(t, streamer)

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")

	waitFor(t, "initial analysis to finish", func() bool {
		state := f.controller.Snapshot()
		return state.Status == assistant.StatusIdle && len(state.Turns) == 1
	})

	state := f.controller.Snapshot()
	if !state.HasContent {
		t.Error("HasContent = false after capture")
	}
	if state.SourceKind != "thread" {
		t.Errorf("SourceKind = %q, want thread", state.SourceKind)
	}
	if got := state.Turns[0].Content; got != "the thread is about shipping" {
		t.Errorf("assistant turn = %q", got)
	}
	if n := streamer.requestCount(); n != 1 {
		t.Errorf("requests issued = %d, want exactly 1", n)
	}
	if !strings.Contains(streamer.request(0).Messages[1].Content, "ship friday?") {
		t.Error("initial prompt does not carry the thread content")
	}
}

func TestNewCaptureClearsTurnsBeforeAnalysis(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"summary"}}
	f := newFixture(t, streamer)

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")
	waitFor(t, "first analysis", func() bool {
		return streamer.requestCount() == 1 && f.controller.Snapshot().Status == assistant.StatusIdle
	})
	f.controller.AskFollowUp("what else?")
	waitFor(t, "follow-up answer", func() bool {
		state := f.controller.Snapshot()
		return len(state.Turns) == 3 && state.Status == assistant.StatusIdle
	})

	f.inbox <- threadResult("https://app.slack.com/client/T1/C2")
	waitFor(t, "second capture analysis", func() bool {
		state := f.controller.Snapshot()
		return streamer.requestCount() == 3 && len(state.Turns) == 1 && state.Status == assistant.StatusIdle
	})
}

func TestLanguageSwitchClearsTurnsAndReissuesOnce(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"summary"}}
	f := newFixture(t, streamer)

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")
	waitFor(t, "initial analysis", func() bool {
		return streamer.requestCount() == 1 && f.controller.Snapshot().Status == assistant.StatusIdle
	})

	if err := f.controller.SetLanguage(context.Background(), "ja"); err != nil {
		t.Fatalf("SetLanguage() error = %v", err)
	}
	waitFor(t, "re-issued analysis", func() bool {
		state := f.controller.Snapshot()
		return streamer.requestCount() == 2 && len(state.Turns) == 1 && state.Status == assistant.StatusIdle
	})

	if !strings.Contains(streamer.request(1).Messages[0].Content, "Japanese") {
		t.Error("re-issued system prompt does not carry the new language")
	}
	if n := streamer.requestCount(); n != 2 {
		t.Errorf("requests after language switch = %d, want exactly 2", n)
	}
}

func TestLanguageSwitchSameCodeIsNoOp(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"summary"}}
	f := newFixture(t, streamer)

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")
	waitFor(t, "initial analysis", func() bool {
		return streamer.requestCount() == 1 && f.controller.Snapshot().Status == assistant.StatusIdle
	})

	if err := f.controller.SetLanguage(context.Background(), assistant.DefaultLanguageCode); err != nil {
		t.Fatalf("SetLanguage() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := streamer.requestCount(); n != 1 {
		t.Errorf("requests after no-op language set = %d, want 1", n)
	}
	if turns := f.controller.Snapshot().Turns; len(turns) != 1 {
		t.Errorf("turns after no-op language set = %d, want 1", len(turns))
	}
}

func TestSupersededCaptureDiscardsStaleStream(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"stale "}, blockN: 1}
	f := newFixture(t, streamer)

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")
	waitFor(t, "first request to start", func() bool {
		return streamer.requestCount() == 1
	})

	f.inbox <- threadResult("https://app.slack.com/client/T1/C2")
	waitFor(t, "second analysis to finish", func() bool {
		state := f.controller.Snapshot()
		return streamer.requestCount() == 2 && state.Status == assistant.StatusIdle && len(state.Turns) == 1
	})

	state := f.controller.Snapshot()
	if state.Turns[0].Streaming {
		t.Error("surviving turn is still streaming")
	}
	if strings.Contains(state.Turns[0].Content, "stale") {
		t.Errorf("stale stream leaked into the transcript: %q", state.Turns[0].Content)
	}
}

func TestFollowUpCarriesPriorTurns(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"summary"}}
	f := newFixture(t, streamer)

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")
	waitFor(t, "initial analysis", func() bool {
		return streamer.requestCount() == 1 && f.controller.Snapshot().Status == assistant.StatusIdle
	})

	if !f.controller.AskFollowUp("who decided?") {
		t.Fatal("AskFollowUp() = false with content loaded")
	}
	waitFor(t, "follow-up answer", func() bool {
		return streamer.requestCount() == 2 && f.controller.Snapshot().Status == assistant.StatusIdle
	})

	req := streamer.request(1)
	last := req.Messages[len(req.Messages)-1]
	if last.Role != chat.RoleUser || last.Content != "who decided?" {
		t.Errorf("last message = %+v, want the follow-up question", last)
	}
	var sawPrior bool
	for _, msg := range req.Messages {
		if msg.Role == chat.RoleAssistant && msg.Content == "summary" {
			sawPrior = true
		}
	}
	if !sawPrior {
		t.Error("follow-up request does not carry the prior assistant turn")
	}
}

func TestAskFollowUpWithoutContent(t *testing.T) {
	streamer := &fakeStreamer{}
	f := newFixture(t, streamer)

	if f.controller.AskFollowUp("anything?") {
		t.Error("AskFollowUp() = true with no capture loaded")
	}
	if n := streamer.requestCount(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestSetOpenInWebFansOutToBackground(t *testing.T) {
	streamer := &fakeStreamer{}
	f := newFixture(t, streamer)
	background := f.bus.Register(relay.ContextBackground)

	if err := f.controller.SetOpenInWeb(context.Background(), true); err != nil {
		t.Fatalf("SetOpenInWeb() error = %v", err)
	}

	select {
	case msg := <-background:
		if msg.Type != relay.TypeOpenInWebChanged {
			t.Fatalf("message type = %s, want OPEN_IN_WEB_CHANGED", msg.Type)
		}
		payload, ok := msg.Payload.(relay.OpenInWebChanged)
		if !ok || !payload.Value {
			t.Fatalf("payload = %+v, want Value=true", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no message reached the background context")
	}
}

func TestSubscriberReceivesResetOnCapture(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"summary"}}
	f := newFixture(t, streamer)

	events, cancel := f.controller.Subscribe()
	defer cancel()

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Kind == EventReset {
				if !event.HasContent {
					t.Error("reset event has HasContent = false")
				}
				return
			}
		case <-deadline:
			t.Fatal("no reset event received")
		}
	}
}

func TestRefreshThreadRequestsFetch(t *testing.T) {
	streamer := &fakeStreamer{chunks: []string{"summary"}}
	f := newFixture(t, streamer)
	page := f.bus.Register(relay.ContextPage)

	if f.controller.RefreshThread() {
		t.Fatal("RefreshThread() = true with no capture")
	}

	f.inbox <- threadResult("https://app.slack.com/client/T1/C1")
	waitFor(t, "initial analysis", func() bool { return streamer.requestCount() == 1 })

	if !f.controller.RefreshThread() {
		t.Fatal("RefreshThread() = false with a thread captured")
	}

	select {
	case msg := <-page:
		if msg.Type != relay.TypeFetchThreadData {
			t.Fatalf("Type = %q, want FETCH_THREAD_DATA", msg.Type)
		}
		payload := msg.Payload.(relay.FetchThreadData)
		if payload.Channel != "C1" || payload.ThreadTs != "1733882111.623399" {
			t.Errorf("payload = %+v, want the captured thread", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no fetch request reached the page context")
	}
}
