// Package panel owns the conversation session and drives the streaming
// assistant. It consumes capture results off the relay, schedules
// analyses, and fans transcript updates out to SSE subscribers.
package panel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/josephj/slack-copilot/internal/api/chat"
	"github.com/josephj/slack-copilot/internal/assistant"
	"github.com/josephj/slack-copilot/internal/prefs"
	"github.com/josephj/slack-copilot/internal/relay"
	"github.com/josephj/slack-copilot/internal/storage"
)

const persistTimeout = 5 * time.Second

// Controller binds session state, the orchestrator, and the relay into
// the panel's behavior.
type Controller struct {
	session     *assistant.Session
	orch        *assistant.Orchestrator
	bus         *relay.Bus
	prefs       *prefs.Service
	transcripts storage.TranscriptStore
	logger      *slog.Logger

	mu        sync.Mutex
	sessionID string
	sourceURL string

	// reqSeq identifies the latest issued request; callbacks from a
	// superseded request within the same generation are discarded.
	reqSeq atomic.Uint64

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// Event is one SSE update pushed to subscribers.
type Event struct {
	Kind       string           `json:"kind"`
	Status     assistant.Status `json:"status"`
	Language   string           `json:"language"`
	HasContent bool             `json:"has_content"`
	Turns      []assistant.Turn `json:"turns"`
}

// Event kinds.
const (
	EventReset    = "reset"
	EventUpdate   = "update"
	EventComplete = "complete"
	EventError    = "error"
)

// NewController creates a panel controller; the session starts in the
// persisted language.
func NewController(orch *assistant.Orchestrator, bus *relay.Bus, preferences *prefs.Service, transcripts storage.TranscriptStore, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		session:     assistant.NewSession(preferences.Language()),
		orch:        orch,
		bus:         bus,
		prefs:       preferences,
		transcripts: transcripts,
		logger:      logger,
		subs:        make(map[chan Event]struct{}),
	}
}

// Run consumes capture results until ctx ends. Unrecognized message
// types are ignored.
func (c *Controller) Run(ctx context.Context, inbox <-chan relay.Message) {
	for {
		select {
		case <-ctx.Done():
			c.orch.Abort()
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			switch msg.Type {
			case relay.TypeThreadDataResult:
				if payload, ok := msg.Payload.(relay.ThreadDataResult); ok {
					c.adoptSource(&assistant.Source{
						Kind:   assistant.SourceThread,
						Thread: payload.Snapshot,
					}, payload.URL)
				}
			case relay.TypeArticleDataResult:
				if payload, ok := msg.Payload.(relay.ArticleDataResult); ok {
					art := payload.Article
					c.adoptSource(&assistant.Source{
						Kind:    assistant.SourceArticle,
						Article: &art,
					}, art.URL)
				}
			}
		}
	}
}

// adoptSource binds a fresh capture: clear turns, mint a new transcript
// session, and schedule exactly one initial analysis.
func (c *Controller) adoptSource(src *assistant.Source, url string) {
	gen := c.session.SetSource(src)

	c.mu.Lock()
	c.sessionID = uuid.New().String()
	c.sourceURL = url
	c.mu.Unlock()

	c.logger.Info("capture adopted",
		slog.String("kind", string(src.Kind)),
		slog.String("url", url),
	)
	c.broadcast(EventReset)
	c.persistHeader()
	c.startInitialAnalysis(gen)
}

func (c *Controller) startInitialAnalysis(gen uint64) {
	src := c.session.Source()
	if src == nil {
		return
	}
	lang := c.session.Language()
	systemPrompt := assistant.SystemPrompt(src.Kind, true, lang)
	userPrompt := assistant.InitialUserPrompt(src)

	seq := c.reqSeq.Add(1)
	c.session.BeginAssistantTurn()
	c.orch.Ask(context.Background(), systemPrompt, userPrompt, nil, c.guarded(gen, seq, lang))
}

// AskFollowUp appends the question and streams an answer bound to the
// current capture. Returns false when no capture is loaded.
func (c *Controller) AskFollowUp(question string) bool {
	if !c.session.HasContent() {
		return false
	}
	src := c.session.Source()
	gen := c.session.Generation()
	lang := c.session.Language()
	seq := c.reqSeq.Add(1)

	// A follow-up issued mid-stream supersedes the running request; the
	// half-streamed turn is dropped rather than kept as a phantom answer.
	c.session.DropStreamingTurn()

	prior := turnsToMessages(c.session.Turns())
	c.session.AppendTurn(assistant.RoleUser, question)
	c.broadcast(EventUpdate)

	systemPrompt := assistant.SystemPrompt(src.Kind, false, lang)
	c.session.BeginAssistantTurn()
	c.orch.Ask(context.Background(), systemPrompt, question, prior, c.guarded(gen, seq, lang))
	return true
}

// SetLanguage switches the response language. When the language actually
// changes and a capture is loaded, the transcript is cleared and exactly
// one fresh initial analysis is issued.
func (c *Controller) SetLanguage(ctx context.Context, code string) error {
	lang, err := c.prefs.SetLanguage(ctx, code)
	if err != nil {
		return err
	}
	changed, gen := c.session.SetLanguage(lang)
	if !changed {
		return nil
	}
	c.broadcast(EventReset)
	if c.session.HasContent() {
		c.startInitialAnalysis(gen)
	}
	return nil
}

// SetOpenInWeb persists the toggle and fans the change out through the
// background context.
func (c *Controller) SetOpenInWeb(ctx context.Context, value bool) error {
	if err := c.prefs.SetOpenInWeb(ctx, value); err != nil {
		return err
	}
	c.bus.Publish(relay.ContextBackground, relay.Message{
		Type:    relay.TypeOpenInWebChanged,
		From:    relay.ContextPanel,
		Payload: relay.OpenInWebChanged{Value: value},
	})
	return nil
}

// RequestArticleCapture asks the content context to extract the page.
func (c *Controller) RequestArticleCapture() {
	c.bus.Publish(relay.ContextContent, relay.Message{
		Type:    relay.TypeCaptureArticle,
		From:    relay.ContextPanel,
		Payload: relay.CaptureArticle{},
	})
}

// RefreshThread asks the page context to re-fetch the current thread, so
// replies posted since the capture show up in a fresh analysis. Returns
// false when the current capture is not a thread.
func (c *Controller) RefreshThread() bool {
	src := c.session.Source()
	if src == nil || src.Kind != assistant.SourceThread || src.Thread == nil {
		return false
	}
	c.bus.Publish(relay.ContextPage, relay.Message{
		Type: relay.TypeFetchThreadData,
		From: relay.ContextPanel,
		Payload: relay.FetchThreadData{
			Channel:  src.Thread.ChannelID,
			ThreadTs: src.Thread.ThreadTs,
		},
	})
	return true
}

// CurrentPageType asks the background context what page is active.
func (c *Controller) CurrentPageType(ctx context.Context) (relay.CurrentPageType, error) {
	reply, err := c.bus.Request(ctx, relay.ContextBackground, relay.Message{
		Type:    relay.TypeGetCurrentPageType,
		From:    relay.ContextPanel,
		Payload: relay.GetCurrentPageType{},
	}, 2*time.Second)
	if err != nil {
		return relay.CurrentPageType{}, err
	}
	payload, _ := reply.Payload.(relay.CurrentPageType)
	return payload, nil
}

// Abort cancels the in-flight analysis, if any.
func (c *Controller) Abort() {
	c.orch.Abort()
}

// State is the panel's read model.
type State struct {
	HasContent bool               `json:"has_content"`
	Status     assistant.Status   `json:"status"`
	Language   assistant.Language `json:"language"`
	SourceKind string             `json:"source_kind,omitempty"`
	SourceURL  string             `json:"source_url,omitempty"`
	Turns      []assistant.Turn   `json:"turns"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	url := c.sourceURL
	c.mu.Unlock()

	state := State{
		HasContent: c.session.HasContent(),
		Status:     c.session.Status(),
		Language:   c.session.Language(),
		SourceURL:  url,
		Turns:      c.session.Turns(),
	}
	if src := c.session.Source(); src != nil {
		state.SourceKind = string(src.Kind)
	}
	return state
}

// guarded builds stream callbacks that discard results from a superseded
// generation or a superseded request.
func (c *Controller) guarded(gen, seq uint64, lang assistant.Language) assistant.Callbacks {
	latest := func() bool { return c.reqSeq.Load() == seq }
	return assistant.Callbacks{
		OnUpdate: func(text string) {
			if latest() && c.session.UpdateIfCurrent(gen, text) {
				c.broadcast(EventUpdate)
			}
		},
		OnComplete: func(text string) {
			if latest() && c.session.FinishIfCurrent(gen, text) {
				c.broadcast(EventComplete)
				c.persistTranscript()
			}
		},
		OnAbort: func() {
			if latest() && c.session.DropIfCurrent(gen) {
				c.broadcast(EventUpdate)
			}
		},
		OnError: func(err error) {
			if latest() && c.session.FinishIfCurrent(gen, assistant.LocalizedStreamError(lang, err)) {
				c.broadcast(EventError)
				c.persistTranscript()
			}
		},
	}
}

// Subscribe registers an SSE subscriber. The returned cancel func must
// be called when the subscriber disconnects.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

// broadcast pushes the current state to every subscriber, dropping
// events for slow consumers rather than blocking the stream.
func (c *Controller) broadcast(kind string) {
	event := Event{
		Kind:       kind,
		Status:     c.session.Status(),
		Language:   c.session.Language().Code,
		HasContent: c.session.HasContent(),
		Turns:      c.session.Turns(),
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// persistHeader writes the transcript session header, best-effort.
func (c *Controller) persistHeader() {
	if c.transcripts == nil {
		return
	}
	c.mu.Lock()
	id := c.sessionID
	url := c.sourceURL
	c.mu.Unlock()

	src := c.session.Source()
	if id == "" || src == nil {
		return
	}
	header := &storage.TranscriptSession{
		ID:         id,
		SourceKind: string(src.Kind),
		SourceURL:  url,
		Language:   c.session.Language().Code,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.transcripts.UpsertSession(ctx, header); err != nil {
			c.logger.Warn("transcript header write failed", slog.String("error", err.Error()))
		}
	}()
}

// persistTranscript writes the full transcript, best-effort. Failures
// are logged and never surface to the panel.
func (c *Controller) persistTranscript() {
	if c.transcripts == nil {
		return
	}
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	if id == "" {
		return
	}

	turns := c.session.Turns()
	stored := make([]storage.TranscriptTurn, 0, len(turns))
	for _, turn := range turns {
		if turn.Streaming {
			continue
		}
		stored = append(stored, storage.TranscriptTurn{
			Role:      turn.Role,
			Content:   turn.Content,
			CreatedAt: turn.Timestamp,
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.transcripts.ReplaceTurns(ctx, id, stored); err != nil {
			c.logger.Warn("transcript write failed", slog.String("error", err.Error()))
		}
	}()
}

func turnsToMessages(turns []assistant.Turn) []chat.Message {
	messages := make([]chat.Message, 0, len(turns))
	for _, turn := range turns {
		if turn.Streaming {
			continue
		}
		role := chat.RoleUser
		if turn.Role == assistant.RoleAssistant {
			role = chat.RoleAssistant
		}
		messages = append(messages, chat.Message{Role: role, Content: turn.Content})
	}
	return messages
}
