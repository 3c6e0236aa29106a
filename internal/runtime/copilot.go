// Package runtime assembles the companion service: the intercept proxy,
// the relay-connected context workers, and the panel HTTP surface, with
// lifecycle management for all of them.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/josephj/slack-copilot/internal/api/chat"
	"github.com/josephj/slack-copilot/internal/article"
	"github.com/josephj/slack-copilot/internal/assistant"
	"github.com/josephj/slack-copilot/internal/background"
	"github.com/josephj/slack-copilot/internal/capture"
	"github.com/josephj/slack-copilot/internal/config"
	"github.com/josephj/slack-copilot/internal/credential"
	"github.com/josephj/slack-copilot/internal/directory"
	"github.com/josephj/slack-copilot/internal/intercept"
	"github.com/josephj/slack-copilot/internal/navwatch"
	"github.com/josephj/slack-copilot/internal/panel"
	"github.com/josephj/slack-copilot/internal/prefs"
	"github.com/josephj/slack-copilot/internal/relay"
	"github.com/josephj/slack-copilot/internal/server"
	"github.com/josephj/slack-copilot/internal/slack"
	"github.com/josephj/slack-copilot/internal/storage"
	"github.com/josephj/slack-copilot/internal/telemetry"
	"github.com/josephj/slack-copilot/internal/thread"
)

// Copilot is the assembled service. It can run standalone or be embedded.
type Copilot struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Store

	bus        *relay.Bus
	creds      *credential.Store
	proxy      *intercept.Proxy
	watcher    *navwatch.Watcher
	controller *panel.Controller
	httpServer *server.Server
	tracker    *pageTracker

	cancel         context.CancelFunc
	wg             sync.WaitGroup
	shutdownTracer func(context.Context) error
}

// New creates a Copilot with the given options and wires all contexts to
// the relay.
func New(opts ...Option) (*Copilot, error) {
	c := &Copilot{
		logger:  slog.Default(),
		tracker: newPageTracker(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if c.cfg == nil {
		return nil, fmt.Errorf("config required (use WithConfig or WithConfigFile)")
	}
	if c.store == nil {
		store, err := openStore(c.cfg)
		if err != nil {
			return nil, err
		}
		c.store = store
	}

	if err := c.wire(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Copilot) wire() error {
	ctx := context.Background()

	preferences, err := prefs.NewService(ctx, c.store, c.logger)
	if err != nil {
		return err
	}

	c.bus = relay.NewBus(c.logger)
	c.creds = credential.NewStore()

	upstream, err := url.Parse(c.cfg.Slack.Upstream)
	if err != nil {
		return fmt.Errorf("parse slack upstream: %w", err)
	}
	c.proxy = intercept.New(upstream, c.creds, c.bus, c.logger)
	c.proxy.SetOpenInWeb(preferences.OpenInWeb())

	slackClient := slack.NewClient(c.cfg.Slack.APIBaseURL)
	dirCache := directory.NewCache(slackClient, c.logger)
	reconstructor := thread.NewReconstructor(c.creds, dirCache, slackClient, c.logger)

	chatOpts := []chat.ClientOption{}
	if c.cfg.Assistant.BaseURL != "" {
		chatOpts = append(chatOpts, chat.WithBaseURL(c.cfg.Assistant.BaseURL))
	}
	chatClient := chat.NewClient(c.cfg.Assistant.APIKey, chatOpts...)
	orchestrator := assistant.NewOrchestrator(chatClient, c.cfg.Assistant.Model, c.logger)

	c.controller = panel.NewController(orchestrator, c.bus, preferences, c.store, c.logger)

	pollInterval, err := time.ParseDuration(c.cfg.Slack.PollInterval)
	if err != nil {
		return fmt.Errorf("parse poll interval: %w", err)
	}
	poller := navwatch.NewPoller(c.tracker.CurrentURL, pollInterval)
	c.watcher = navwatch.New(poller, reconstructor, c.bus, nil, c.logger)

	contentWorker := capture.New(c.bus, dirCache, article.NewExtractor(), c.tracker, nil, c.logger)
	backgroundWorker := background.New(c.bus, c.proxy, c.tracker, nil, c.logger)

	pageInbox := c.bus.Register(relay.ContextPage)
	panelInbox := c.bus.Register(relay.ContextPanel)
	contentInbox := c.bus.Register(relay.ContextContent)
	backgroundInbox := c.bus.Register(relay.ContextBackground)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(4)
	go func() { defer c.wg.Done(); c.controller.Run(runCtx, panelInbox) }()
	go func() { defer c.wg.Done(); contentWorker.Run(runCtx, contentInbox) }()
	go func() { defer c.wg.Done(); backgroundWorker.Run(runCtx, backgroundInbox) }()
	go func() { defer c.wg.Done(); c.watcher.Run(runCtx, pageInbox) }()

	c.httpServer = server.New(c.cfg.Server.Port, c.logger)
	c.mountRoutes()
	return nil
}

func (c *Copilot) mountRoutes() {
	r := c.httpServer.Router
	api := panel.NewAPI(c.controller, c.watcher, c.logger)
	r.Mount("/panel", api.Routes())
	r.Post("/nav", c.handleNavigation)
	// Everything else is transparently proxied to the Slack web client.
	r.Handle("/*", c.proxy)
}

// handleNavigation ingests a navigation report from the observed client.
// The poller picks the change up and triggers thread reconstruction.
func (c *Copilot) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	c.tracker.Set(body.URL)
	w.WriteHeader(http.StatusAccepted)
}

// Start initializes telemetry and serves HTTP until the server stops.
func (c *Copilot) Start(ctx context.Context) error {
	if c.cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("slack-copilot", c.logger)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		c.shutdownTracer = shutdown
	}
	return c.httpServer.Start()
}

// Shutdown stops the workers, drains HTTP, clears the captured
// credential, and closes storage.
func (c *Copilot) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	var firstErr error
	if err := c.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	c.creds.Clear()
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if c.shutdownTracer != nil {
		if err := c.shutdownTracer(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Router exposes the HTTP router for embedding and tests.
func (c *Copilot) Router() http.Handler {
	return c.httpServer.Router
}

// pageTracker holds the last reported page URL.
type pageTracker struct {
	url atomic.Value
}

func newPageTracker() *pageTracker {
	t := &pageTracker{}
	t.url.Store("")
	return t
}

func (t *pageTracker) Set(url string) {
	t.url.Store(url)
}

func (t *pageTracker) CurrentURL() string {
	v, _ := t.url.Load().(string)
	return v
}
