package panel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/josephj/slack-copilot/internal/assistant"
	"github.com/josephj/slack-copilot/internal/relay"
	"github.com/josephj/slack-copilot/internal/storage"
)

// ThreadOpener activates a thread in the observed client.
type ThreadOpener interface {
	OpenThread(ctx context.Context, threadTs string) bool
}

// API is the panel's REST/SSE surface.
type API struct {
	controller *Controller
	opener     ThreadOpener
	logger     *slog.Logger
}

// NewAPI creates the panel API. opener may be nil when no activator is
// wired.
func NewAPI(controller *Controller, opener ThreadOpener, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{controller: controller, opener: opener, logger: logger}
}

// Routes returns the panel router, mounted under /panel.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/state", a.handleState)
	r.Get("/languages", a.handleLanguages)
	r.Get("/events", a.handleEvents)
	r.Get("/page-type", a.handlePageType)
	r.Post("/ask", a.handleAsk)
	r.Post("/abort", a.handleAbort)
	r.Post("/language", a.handleLanguage)
	r.Post("/open-in-web", a.handleOpenInWeb)
	r.Post("/capture-article", a.handleCaptureArticle)
	r.Post("/refresh", a.handleRefresh)
	r.Post("/open-thread", a.handleOpenThread)
	r.Get("/sessions", a.handleListSessions)
	r.Get("/sessions/{id}", a.handleGetSession)
	return r
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.Snapshot())
}

func (a *API) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current":   a.controller.Snapshot().Language,
		"supported": assistant.SupportedLanguages,
	})
}

func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if !a.controller.AskFollowUp(body.Question) {
		writeError(w, http.StatusConflict, "no content captured yet")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleAbort(w http.ResponseWriter, r *http.Request) {
	a.controller.Abort()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLanguage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if err := a.controller.SetLanguage(r.Context(), body.Code); err != nil {
		a.logger.Error("language change failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save language")
		return
	}
	writeJSON(w, http.StatusOK, a.controller.Snapshot())
}

func (a *API) handleOpenInWeb(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := a.controller.SetOpenInWeb(r.Context(), body.Value); err != nil {
		a.logger.Error("open-in-web change failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save preference")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCaptureArticle(w http.ResponseWriter, r *http.Request) {
	a.controller.RequestArticleCapture()
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !a.controller.RefreshThread() {
		writeError(w, http.StatusConflict, "no thread captured")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleOpenThread(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ThreadTs string `json:"thread_ts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ThreadTs == "" {
		writeError(w, http.StatusBadRequest, "thread_ts is required")
		return
	}
	if a.opener == nil {
		writeError(w, http.StatusNotImplemented, "no thread activator configured")
		return
	}
	if !a.opener.OpenThread(r.Context(), body.ThreadTs) {
		writeError(w, http.StatusBadGateway, "thread activation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePageType(w http.ResponseWriter, r *http.Request) {
	pageType, err := a.controller.CurrentPageType(r.Context())
	if err != nil {
		if errors.Is(err, relay.ErrTimeout) {
			writeError(w, http.StatusGatewayTimeout, "page type query timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "page type query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"is_slack": pageType.IsSlack,
		"url":      pageType.URL,
	})
}

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if a.controller.transcripts == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	sessions, err := a.controller.transcripts.ListSessions(r.Context(), 50)
	if err != nil {
		a.logger.Error("session list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if a.controller.transcripts == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	id := chi.URLParam(r, "id")
	session, turns, err := a.controller.transcripts.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		a.logger.Error("session read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"turns":   turns,
	})
}

// handleEvents streams state updates as server-sent events. An initial
// snapshot event is sent on connect.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := a.controller.Subscribe()
	defer cancel()

	snapshot := a.controller.Snapshot()
	writeSSE(w, Event{
		Kind:       EventUpdate,
		Status:     snapshot.Status,
		Language:   snapshot.Language.Code,
		HasContent: snapshot.HasContent,
		Turns:      snapshot.Turns,
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
