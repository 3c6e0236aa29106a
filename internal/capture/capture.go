// Package capture is the content-context worker: it forwards intercepted
// thread payloads to the panel as canonical snapshots and extracts
// article content on demand.
package capture

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/josephj/slack-copilot/internal/article"
	"github.com/josephj/slack-copilot/internal/directory"
	"github.com/josephj/slack-copilot/internal/navwatch"
	"github.com/josephj/slack-copilot/internal/relay"
	"github.com/josephj/slack-copilot/internal/thread"
)

// Resolver resolves user directories for mention resolution.
type Resolver interface {
	Resolve(ctx context.Context, token string) (directory.Directory, error)
}

// PageSource reports the page the content context currently observes.
type PageSource interface {
	CurrentURL() string
}

// Worker consumes the content inbox.
type Worker struct {
	bus        *relay.Bus
	dir        Resolver
	extractor  *article.Extractor
	pages      PageSource
	httpClient *http.Client
	logger     *slog.Logger

	// origin is the page origin last announced by the page context.
	// Thread payloads from any other origin are discarded.
	origin string
}

// New creates a content worker. pages may be nil; article capture then
// fails with a logged warning instead of extracting.
func New(bus *relay.Bus, dir Resolver, extractor *article.Extractor, pages PageSource, httpClient *http.Client, logger *slog.Logger) *Worker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		bus:        bus,
		dir:        dir,
		extractor:  extractor,
		pages:      pages,
		httpClient: httpClient,
		logger:     logger,
	}
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
			case relay.TypeOrigin:
				if payload, ok := msg.Payload.(relay.Origin); ok {
					w.origin = payload.Origin
				}
			case relay.TypeSlackThreadData:
				if payload, ok := msg.Payload.(relay.SlackThreadData); ok {
					w.forwardThread(ctx, payload)
				}
			case relay.TypeCaptureArticle:
				w.captureArticle(ctx)
			case relay.TypeOpenInWebChanged:
				// Content has nothing to toggle server-side; the
				// intercept proxy owns the redirect rule.
			}
		}
	}
}

// forwardThread turns an intercepted replies payload into a canonical
// snapshot. Directory resolution is best-effort: on failure mentions
// stay as raw user ids rather than dropping the capture.
func (w *Worker) forwardThread(ctx context.Context, payload relay.SlackThreadData) {
	if len(payload.Messages) == 0 {
		return
	}
	if w.origin != "" && !sameOrigin(payload.URL, w.origin) {
		w.logger.Warn("dropping thread payload from unannounced origin",
			slog.String("url", payload.URL),
			slog.String("expected", w.origin),
		)
		return
	}

	channelID, _ := navwatch.ExtractChannelID(payload.URL)
	threadTs := payload.Messages[0].ThreadTs
	if threadTs == "" {
		threadTs = payload.Messages[0].Ts
	}

	var dir directory.Directory
	if w.dir != nil && payload.Token != "" {
		resolved, err := w.dir.Resolve(ctx, payload.Token)
		if err != nil {
			w.logger.Warn("directory resolution failed, keeping raw mentions",
				slog.String("error", err.Error()),
			)
		} else {
			dir = resolved
		}
	}

	snapshot := thread.BuildSnapshot(channelID, threadTs, payload.Messages, dir)
	w.bus.Publish(relay.ContextPanel, relay.Message{
		Type:    relay.TypeThreadDataResult,
		From:    relay.ContextContent,
		Payload: relay.ThreadDataResult{Snapshot: snapshot, URL: payload.URL},
	})

	// A freshly captured thread means the user is reading one; make sure
	// the panel is up.
	w.bus.Publish(relay.ContextBackground, relay.Message{
		Type:    relay.TypeOpenSidePanel,
		From:    relay.ContextContent,
		Payload: relay.OpenSidePanel{LinkURL: payload.URL},
	})
}

func sameOrigin(rawURL, origin string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return u.Scheme+"://"+u.Host == origin
}

// captureArticle fetches the observed page and publishes the extraction.
func (w *Worker) captureArticle(ctx context.Context) {
	if w.pages == nil {
		w.logger.Warn("article capture requested with no page source")
		return
	}
	url := w.pages.CurrentURL()
	if url == "" {
		w.logger.Warn("article capture requested with no active page")
		return
	}

	html, err := w.fetchPage(ctx, url)
	if err != nil {
		w.logger.Warn("article fetch failed",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return
	}

	data, err := w.extractor.Extract(strings.NewReader(html), url)
	if err != nil {
		w.logger.Warn("article extraction failed",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return
	}

	w.bus.Publish(relay.ContextPanel, relay.Message{
		Type:    relay.TypeArticleDataResult,
		From:    relay.ContextContent,
		Payload: relay.ArticleDataResult{Article: data},
	})
}

func (w *Worker) fetchPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
