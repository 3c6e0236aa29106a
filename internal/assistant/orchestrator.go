package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/josephj/slack-copilot/internal/api/chat"
)

// Streamer is the streaming chat client the orchestrator drives.
type Streamer interface {
	Stream(ctx context.Context, req *chat.CompletionRequest) (<-chan chat.StreamResult, error)
}

// Callbacks receives stream progress. OnUpdate fires with the cumulative
// text so far; exactly one of OnComplete, OnAbort, or OnError fires last.
type Callbacks struct {
	OnUpdate   func(text string)
	OnComplete func(text string)
	OnAbort    func()
	OnError    func(err error)
}

// Orchestrator issues chat-completion requests one at a time. It owns a
// single cancellation handle: starting a new request cancels whatever
// request is in flight, so at most one stream is live per session.
type Orchestrator struct {
	client Streamer
	model  string
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over the given streaming client.
func NewOrchestrator(client Streamer, model string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Ask cancels any in-flight request and starts a new streaming completion
// built from the system prompt, prior turns, and the user prompt. Progress
// is reported through cb; the call itself returns immediately.
func (o *Orchestrator) Ask(ctx context.Context, systemPrompt, userPrompt string, prior []chat.Message, cb Callbacks) {
	reqCtx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.cancel = cancel
	o.mu.Unlock()

	messages := make([]chat.Message, 0, len(prior)+2)
	messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: systemPrompt})
	messages = append(messages, prior...)
	messages = append(messages, chat.Message{Role: chat.RoleUser, Content: userPrompt})

	req := &chat.CompletionRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   true,
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(reqCtx, req, cb)
	}()
}

// Abort cancels the in-flight request, if any.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()
}

// Wait blocks until all issued requests have finished. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, req *chat.CompletionRequest, cb Callbacks) {
	stream, err := o.client.Stream(ctx, req)
	if err != nil {
		if isCanceled(ctx, err) {
			o.notifyAbort(cb)
			return
		}
		o.logger.Error("completion request failed", slog.String("error", err.Error()))
		o.notifyError(cb, err)
		return
	}

	var sb strings.Builder
	for result := range stream {
		if result.Err != nil {
			if isCanceled(ctx, result.Err) {
				o.notifyAbort(cb)
				return
			}
			o.logger.Error("stream failed", slog.String("error", result.Err.Error()))
			o.notifyError(cb, result.Err)
			return
		}
		for _, choice := range result.Chunk.Choices {
			if choice.Delta.Content != "" {
				sb.WriteString(choice.Delta.Content)
				if cb.OnUpdate != nil {
					cb.OnUpdate(sb.String())
				}
			}
		}
	}

	// The stream can end because the context was cancelled mid-read
	// without a surfaced error. Treat that as an abort, not completion.
	if ctx.Err() != nil {
		o.notifyAbort(cb)
		return
	}
	if cb.OnComplete != nil {
		cb.OnComplete(sb.String())
	}
}

func (o *Orchestrator) notifyAbort(cb Callbacks) {
	if cb.OnAbort != nil {
		cb.OnAbort()
	}
}

func (o *Orchestrator) notifyError(cb Callbacks, err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// isCanceled reports whether err reflects the request's own cancellation
// rather than a genuine failure.
func isCanceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
