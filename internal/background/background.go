// Package background is the coordination context: it answers page-type
// queries, fans preference changes out, and relays panel-open requests.
package background

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/josephj/slack-copilot/internal/relay"
)

// RedirectToggle flips the open-in-web redirect rule on the intercept
// proxy.
type RedirectToggle interface {
	SetOpenInWeb(enabled bool)
}

// PageSource reports the page currently observed.
type PageSource interface {
	CurrentURL() string
}

// PanelOpener surfaces the panel to the user. Optional.
type PanelOpener interface {
	OpenPanel(linkURL string)
}

// Worker consumes the background inbox.
type Worker struct {
	bus      *relay.Bus
	redirect RedirectToggle
	pages    PageSource
	opener   PanelOpener
	logger   *slog.Logger
}

// New creates a background worker. redirect, pages, and opener may each
// be nil; the corresponding operations degrade to logged no-ops.
func New(bus *relay.Bus, redirect RedirectToggle, pages PageSource, opener PanelOpener, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{bus: bus, redirect: redirect, pages: pages, opener: opener, logger: logger}
}

// Run processes messages until ctx ends. Unrecognized types are ignored.
func (w *Worker) Run(ctx context.Context, inbox <-chan relay.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			switch msg.Type {
			case relay.TypeOpenSidePanel:
				if payload, ok := msg.Payload.(relay.OpenSidePanel); ok {
					w.openPanel(payload)
				}
			case relay.TypeOpenInWebChanged:
				if payload, ok := msg.Payload.(relay.OpenInWebChanged); ok {
					w.fanOutOpenInWeb(payload)
				}
			case relay.TypeGetCurrentPageType:
				w.answerPageType(msg)
			}
		}
	}
}

func (w *Worker) openPanel(payload relay.OpenSidePanel) {
	if w.opener == nil {
		w.logger.Info("panel open requested", slog.String("link_url", payload.LinkURL))
		return
	}
	w.opener.OpenPanel(payload.LinkURL)
}

// fanOutOpenInWeb applies the toggle to the intercept layer and forwards
// the change to the content context.
func (w *Worker) fanOutOpenInWeb(payload relay.OpenInWebChanged) {
	if w.redirect != nil {
		w.redirect.SetOpenInWeb(payload.Value)
	}
	w.bus.Publish(relay.ContextContent, relay.Message{
		Type:    relay.TypeOpenInWebChanged,
		From:    relay.ContextBackground,
		Payload: payload,
	})
}

func (w *Worker) answerPageType(req relay.Message) {
	var current string
	if w.pages != nil {
		current = w.pages.CurrentURL()
	}
	w.bus.Reply(req, relay.Message{
		Type: relay.TypeCurrentPageType,
		From: relay.ContextBackground,
		Payload: relay.CurrentPageType{
			IsSlack: IsSlackURL(current),
			URL:     current,
		},
	})
}

// IsSlackURL reports whether rawURL points at the Slack web client.
func IsSlackURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Host == "app.slack.com" || strings.HasSuffix(u.Host, ".slack.com")
}
