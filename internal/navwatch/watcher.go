// Package navwatch detects in-page navigation to a thread and reacts by
// reconstructing it, without a full page load. Detection is a pluggable
// event source so the polling fallback can be swapped for a native
// navigation API where one exists.
package navwatch

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/josephj/slack-copilot/internal/relay"
	"github.com/josephj/slack-copilot/internal/thread"
)

// Event is one discrete navigation change.
type Event struct {
	OldURL string
	NewURL string
}

// Source produces navigation events. Implementations own their detection
// mechanism; consumers only see the event stream.
type Source interface {
	Events() <-chan Event
	Close()
}

// Activator performs the advisory UI interaction after a thread is
// reconstructed: locate the message and open its thread view. Failures
// never block data reconstruction, which has already completed.
type Activator interface {
	OpenThread(ctx context.Context, threadTs string) error
}

// Reconstructor is the slice of the thread package the watcher needs.
type Reconstructor interface {
	Reconstruct(ctx context.Context, channelID, threadTs string) (*thread.Snapshot, error)
}

// Watcher consumes navigation events and triggers reconstruction.
type Watcher struct {
	source    Source
	recon     Reconstructor
	bus       *relay.Bus
	activator Activator
	logger    *slog.Logger

	lastOrigin string
}

// New wires a watcher to its source and collaborators. activator may be
// nil when no UI automation is available.
func New(source Source, recon Reconstructor, bus *relay.Bus, activator Activator, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		source:    source,
		recon:     recon,
		bus:       bus,
		activator: activator,
		logger:    logger,
	}
}

// Run services navigation events and fetch requests until ctx is done.
func (w *Watcher) Run(ctx context.Context, inbox <-chan relay.Message) {
	defer w.source.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.source.Events():
			if !ok {
				return
			}
			w.announceOrigin(ev.NewURL)
			w.handle(ctx, ev.NewURL)
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			if msg.Type == relay.TypeFetchThreadData {
				if payload, ok := msg.Payload.(relay.FetchThreadData); ok {
					w.fetch(ctx, payload)
				}
			}
		}
	}
}

// announceOrigin tells the content context which origin it is observing.
// Republished only when the origin actually changes.
func (w *Watcher) announceOrigin(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return
	}
	origin := u.Scheme + "://" + u.Host
	if origin == w.lastOrigin {
		return
	}
	w.lastOrigin = origin
	w.bus.Publish(relay.ContextContent, relay.Message{
		Type:    relay.TypeOrigin,
		From:    relay.ContextPage,
		Payload: relay.Origin{Origin: origin},
	})
}

// fetch answers an explicit reconstruction request for a known thread.
func (w *Watcher) fetch(ctx context.Context, req relay.FetchThreadData) {
	snapshot, err := w.recon.Reconstruct(ctx, req.Channel, req.ThreadTs)
	if err != nil {
		w.logger.Warn("thread fetch failed",
			slog.String("channel", req.Channel),
			slog.String("thread_ts", req.ThreadTs),
			slog.String("error", err.Error()),
		)
		return
	}

	w.bus.Publish(relay.ContextPanel, relay.Message{
		Type: relay.TypeThreadDataResult,
		From: relay.ContextPage,
		Payload: relay.ThreadDataResult{
			Snapshot: snapshot,
			URL:      "/archives/" + req.Channel + "/p" + strings.Replace(req.ThreadTs, ".", "", 1),
		},
	})
}

func (w *Watcher) handle(ctx context.Context, url string) {
	threadTs, ok := ExtractThreadTs(url)
	if !ok {
		return
	}
	channelID, ok := ExtractChannelID(url)
	if !ok {
		return
	}

	snapshot, err := w.recon.Reconstruct(ctx, channelID, threadTs)
	if err != nil {
		w.logger.Warn("navigation reconstruction failed",
			slog.String("channel", channelID),
			slog.String("thread_ts", threadTs),
			slog.String("error", err.Error()),
		)
		return
	}

	w.bus.Publish(relay.ContextPanel, relay.Message{
		Type:    relay.TypeThreadDataResult,
		From:    relay.ContextPage,
		Payload: relay.ThreadDataResult{Snapshot: snapshot, URL: url},
	})

	w.activate(ctx, threadTs)
}

// OpenThread is the manual entry point: attempt only the UI interaction
// for an already-known thread. Reports whether activation succeeded.
func (w *Watcher) OpenThread(ctx context.Context, threadTs string) bool {
	if w.activator == nil {
		return false
	}
	if err := w.activator.OpenThread(ctx, threadTs); err != nil {
		w.logger.Debug("thread activation failed",
			slog.String("thread_ts", threadTs),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (w *Watcher) activate(ctx context.Context, threadTs string) {
	if w.activator == nil {
		return
	}
	if err := w.activator.OpenThread(ctx, threadTs); err != nil {
		// Advisory only.
		w.logger.Debug("thread activation failed",
			slog.String("thread_ts", threadTs),
			slog.String("error", err.Error()),
		)
	}
}

// Poller is the fallback Source: it samples a URL getter on a fixed
// interval and emits an event whenever the value changes. It covers
// navigation the structural observers miss.
type Poller struct {
	current   func() string
	interval  time.Duration
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewPoller starts polling immediately.
func NewPoller(current func() string, interval time.Duration) *Poller {
	p := &Poller{
		current:  current,
		interval: interval,
		events:   make(chan Event, 4),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Poller) loop() {
	last := p.current()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			close(p.events)
			return
		case <-ticker.C:
			now := p.current()
			if now == last {
				continue
			}
			ev := Event{OldURL: last, NewURL: now}
			last = now
			select {
			case p.events <- ev:
			default:
			}
		}
	}
}

// Events implements Source.
func (p *Poller) Events() <-chan Event { return p.events }

// Close implements Source. Safe to call more than once.
func (p *Poller) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
