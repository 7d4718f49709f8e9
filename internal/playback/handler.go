package playback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	maxBodyBytes     = 64 << 10
	scriptType       = "application/javascript; charset=utf-8"
	eventWriteWait   = 10 * time.Second
	eventCloseReason = "session closed"
)

// ScriptRenderer renders the enforcement script for a session.
// *enforcement.Enforcer satisfies it.
type ScriptRenderer interface {
	Script(sessionID string) (string, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The player surface is an embedded engine, not a browser tab with a
	// meaningful Origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler exposes the playback engine over HTTP using go-chi.
type Handler struct {
	svc    *Service
	hub    *Hub
	script ScriptRenderer
	log    *slog.Logger
}

// NewHandler returns a Handler. hub and script may be nil, which disables
// the event stream and the script endpoint respectively.
func NewHandler(svc *Service, hub *Hub, script ScriptRenderer, log *slog.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, script: script, log: log}
}

// RegisterRoutes mounts the session endpoints on r. createLimit wraps
// session creation only; the engine callbacks under /sessions/{session_id}
// are called once per resource request and must never be throttled.
func (h *Handler) RegisterRoutes(r chi.Router, createLimit ...func(http.Handler) http.Handler) {
	r.With(createLimit...).Post("/sessions", h.StartPlayback)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.ClosePlayback)
		r.Post("/requests", h.ShouldAllow)
		r.Post("/navigations", h.Observe)
		r.Post("/load-errors", h.ReportLoadFailure)
		r.Post("/retry", h.Retry)
		r.Post("/reports", h.ScriptReport)
		r.Get("/enforcement.js", h.EnforcementScript)
		r.Get("/events", h.Events)
	})
}

// contentID accepts a catalog id given as a JSON string or number.
type contentID string

func (c *contentID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = contentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number")
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %s", n)
	}
	*c = contentID(n.String())
	return nil
}

type startRequest struct {
	Surface string    `json:"surface"`
	ID      contentID `json:"id"`
	Kind    Kind      `json:"kind"`
	Season  int       `json:"season"`
	Episode int       `json:"episode"`
}

type urlRequest struct {
	URL string `json:"url"`
}

type navigationRequest struct {
	URL     string `json:"url"`
	Loading bool   `json:"loading"`
}

type navigationResponse struct {
	Drift bool  `json:"drift"`
	State State `json:"state"`
}

type loadErrorRequest struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type loadErrorResponse struct {
	Ignored bool         `json:"ignored"`
	Error   *PlayerError `json:"error,omitempty"`
}

type scriptReport struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StartPlayback handles POST /sessions.
// Body: { "surface": "tv", "id": 1396, "kind": "series", "season": 1, "episode": 2 }.
func (h *Handler) StartPlayback(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.svc.StartPlayback(req.Surface, Intent{
		ID:      string(req.ID),
		Kind:    req.Kind,
		Season:  req.Season,
		Episode: req.Episode,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ClosePlayback handles DELETE /sessions/{session_id}.
func (h *Handler) ClosePlayback(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClosePlayback(chi.URLParam(r, "session_id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ShouldAllow handles POST /sessions/{session_id}/requests.
// Body: { "url": "https://..." }.
func (h *Handler) ShouldAllow(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !h.decode(w, r, &req) {
		return
	}
	ok, err := h.svc.ShouldAllow(chi.URLParam(r, "session_id"), req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allow": ok})
}

// Observe handles POST /sessions/{session_id}/navigations.
// Body: { "url": "https://...", "loading": false }.
func (h *Handler) Observe(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if !h.decode(w, r, &req) {
		return
	}
	d, st, err := h.svc.Observe(chi.URLParam(r, "session_id"), req.URL, req.Loading)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, navigationResponse{Drift: d == Drift, State: st})
}

// ReportLoadFailure handles POST /sessions/{session_id}/load-errors.
// Body: { "url": "https://...", "description": "net::ERR_..." }.
func (h *Handler) ReportLoadFailure(w http.ResponseWriter, r *http.Request) {
	var req loadErrorRequest
	if !h.decode(w, r, &req) {
		return
	}
	perr, err := h.svc.ReportLoadFailure(chi.URLParam(r, "session_id"), req.URL, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loadErrorResponse{Ignored: perr == nil, Error: perr})
}

// Retry handles POST /sessions/{session_id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if err := h.svc.Retry(id); err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.svc.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ScriptReport handles POST /sessions/{session_id}/reports, the one-way log
// channel of the enforcement script.
func (h *Handler) ScriptReport(w http.ResponseWriter, r *http.Request) {
	var req scriptReport
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "session_id")
	if _, err := h.svc.Get(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("enforcement report",
		slog.String("event", "script.report"),
		slog.String("session_id", id),
		slog.String("kind", req.Kind),
		slog.String("detail", req.Detail))
	w.WriteHeader(http.StatusAccepted)
}

// EnforcementScript handles GET /sessions/{session_id}/enforcement.js.
func (h *Handler) EnforcementScript(w http.ResponseWriter, r *http.Request) {
	if h.script == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "session_id")
	snap, err := h.svc.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if snap.State == StateClosed {
		h.writeError(w, ErrSessionClosed)
		return
	}

	js, err := h.script.Script(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", scriptType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(js))
}

// Events handles GET /sessions/{session_id}/events. It upgrades to a
// websocket, sends the current state, then streams session events until
// the session closes or the client goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "session_id")

	// Subscribe before reading the state so no transition is missed.
	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	snap, err := h.svc.Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	h.log.Debug("event stream opened",
		slog.String("event", "events.subscribe"),
		slog.String("session_id", id))

	current := Event{SessionID: id, Type: EventState, State: snap.State, At: time.Now()}
	if !h.writeEvent(conn, current) || snap.State == StateClosed {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok || !h.writeEvent(conn, ev) {
				return
			}
			if ev.Type == EventState && ev.State == StateClosed {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent sends ev and, for the closed state, a normal close frame.
func (h *Handler) writeEvent(conn *websocket.Conn, ev Event) bool {
	conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.log.Debug("event write failed",
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()))
		return false
	}
	if ev.Type == EventState && ev.State == StateClosed {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, eventCloseReason))
	}
	return true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidIntent):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrIllegalTransition):
		status = http.StatusConflict
	default:
		h.log.Error("request failed", slog.String("error", err.Error()))
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
