// Package intercept is the page-context interception layer: an observing
// reverse proxy in front of the Slack origin. Every request is forwarded
// unchanged; the observer works on copies, so response bytes, headers,
// and timing visible to the page are unaffected.
package intercept

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/josephj/slack-copilot/internal/credential"
	"github.com/josephj/slack-copilot/internal/relay"
	"github.com/josephj/slack-copilot/internal/slack"
)

const repliesPath = "/api/conversations.replies"

// archiveLink matches thread-archive URLs: /archives/<channel>/p<digits>.
var archiveLink = regexp.MustCompile(`^/archives/([A-Z0-9]+)/p(\d{10})(\d{6})$`)

// Proxy observes traffic between the page and the Slack origin. It is the
// sole writer of the credential store.
type Proxy struct {
	upstream  *url.URL
	creds     *credential.Store
	bus       *relay.Bus
	logger    *slog.Logger
	reverse   *httputil.ReverseProxy
	openInWeb atomic.Bool
	now       func() time.Time
}

// New creates a proxy for the given upstream origin.
func New(upstream *url.URL, creds *credential.Store, bus *relay.Bus, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Proxy{
		upstream: upstream,
		creds:    creds,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
	p.reverse = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
		},
		ModifyResponse: p.observeResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("proxy upstream error",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return p
}

// SetOpenInWeb toggles the archive-to-client redirect rule.
func (p *Proxy) SetOpenInWeb(enabled bool) {
	p.openInWeb.Store(enabled)
}

// ServeHTTP forwards the request upstream after observing it. When the
// open-in-web rule is active, thread-archive URLs are redirected to their
// team-messages client form instead of being proxied.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.openInWeb.Load() && r.Method == http.MethodGet {
		if target, ok := RewriteArchiveURL(r.URL.Path); ok {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
	}

	p.observeRequest(r)
	p.reverse.ServeHTTP(w, r)
}

// RewriteArchiveURL maps a thread-archive path to the team-messages
// client path, reinserting the decimal point 6 digits from the end of the
// compact timestamp.
func RewriteArchiveURL(path string) (string, bool) {
	m := archiveLink.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return "/messages/" + m[1] + "/" + m[2] + "." + m[3], true
}

// observeRequest inspects a copy of the outbound body for a credential
// field: structured JSON first, form encoding as fallback. The body seen
// upstream is byte-identical.
func (p *Proxy) observeRequest(r *http.Request) {
	if r.Body == nil || r.Body == http.NoBody {
		return
	}

	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		p.logger.Warn("failed to read request body for observation", slog.String("error", err.Error()))
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	if token := sniffToken(body); token != "" {
		p.creds.Set(token, p.now())
	}
}

// sniffToken extracts a credential token from a request body copy.
func sniffToken(body []byte) string {
	var structured struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &structured); err == nil && structured.Token != "" {
		return structured.Token
	}

	if !bytes.Contains(body, []byte("token=")) {
		return ""
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	return form.Get("token")
}

// observeResponse republishes conversation-fetch payloads on the relay.
// The response handed back to the page is untouched.
func (p *Proxy) observeResponse(resp *http.Response) error {
	if !strings.Contains(resp.Request.URL.Path, repliesPath) {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		// The page still needs a response; pass the error through to the
		// proxy's error handler rather than observing.
		return err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	// Upstream typically answers gzip when the page asked for it. The
	// page keeps the compressed bytes; only the observation copy is
	// decompressed.
	observed := body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		observed, err = gunzip(body)
		if err != nil {
			p.logger.Warn("failed to decompress intercepted thread payload", slog.String("error", err.Error()))
			return nil
		}
	}

	var payload struct {
		OK       bool               `json:"ok"`
		Messages []slack.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(observed, &payload); err != nil {
		p.logger.Warn("failed to parse intercepted thread payload", slog.String("error", err.Error()))
		return nil
	}
	if !payload.OK {
		return nil
	}

	var token string
	if cred, ok := p.creds.Get(); ok {
		token = cred.Token
	}

	p.bus.Publish(relay.ContextContent, relay.Message{
		Type: relay.TypeSlackThreadData,
		From: relay.ContextPage,
		Payload: relay.SlackThreadData{
			URL:       resp.Request.URL.String(),
			Messages:  payload.Messages,
			Token:     token,
			Timestamp: p.now(),
		},
	})
	return nil
}

func gunzip(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
