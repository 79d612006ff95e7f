// Package api serves the notes REST endpoints.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/kuitang/quicknotes/internal/clock"
	"github.com/kuitang/quicknotes/internal/errs"
	"github.com/kuitang/quicknotes/internal/logutil"
	"github.com/kuitang/quicknotes/internal/metrics"
	"github.com/kuitang/quicknotes/internal/notes"
	"github.com/kuitang/quicknotes/internal/obs"
	"github.com/kuitang/quicknotes/internal/ratelimit"
	"github.com/kuitang/quicknotes/internal/urlutil"
)

const (
	// MsgNoChanges accompanies an update that left the note as it was.
	MsgNoChanges = "No changes detected"
	// MsgInvalidJSON is returned for bodies that are not a JSON object.
	MsgInvalidJSON = "Invalid JSON body"
	// MsgBodyTooLarge is returned when a body exceeds the configured limit.
	MsgBodyTooLarge = "Request body too large"

	defaultMaxBodyBytes = 1 << 20
	logPreviewRunes     = 60
)

// Handler wraps the notes service and provides HTTP handlers
type Handler struct {
	notes        *notes.Service
	window       *ratelimit.Window
	clock        clock.Clock
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithMaxBodyBytes caps request bodies; n <= 0 keeps the default.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler creates an API handler. window gates note creation and clk
// supplies the admission time.
func NewHandler(svc *notes.Service, window *ratelimit.Window, clk clock.Clock, opts ...HandlerOption) *Handler {
	h := &Handler{
		notes:        svc,
		window:       window,
		clock:        clk,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all notes API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /notes", h.CreateNote)
	mux.HandleFunc("GET /notes", h.ListNotes)
	// Literal segment beats the {id} wildcard.
	mux.HandleFunc("GET /notes/search", h.SearchNotes)
	mux.HandleFunc("GET /notes/{id}", h.GetNote)
	mux.HandleFunc("GET /notes/{id}/html", h.GetNoteHTML)
	mux.HandleFunc("PUT /notes/{id}", h.UpdateNote)
}

// CreateNote handles POST /notes. A body that is not a JSON object is
// rejected before the creation window is consulted; blank fields are not,
// so they still use a slot.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	log := obs.From(r.Context()).With("pkg", "api")

	body, ok := h.decodeObject(w, r)
	if !ok {
		h.metrics.CreateRejected(metrics.ReasonInvalid)
		return
	}

	now := h.clock.Now()
	if err := h.window.TryAdmit(now); err != nil {
		retry := h.window.RetryAfter(now)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.window.Limit()))
		w.Header().Set("X-RateLimit-Remaining", "0")
		h.metrics.CreateRejected(metrics.ReasonRateLimited)
		log.Warn("note_create_rate_limited", "retry_after", retry.String())
		writeErr(w, err)
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.window.Limit()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(h.window.Remaining(now)))

	note, err := h.notes.Create(notes.CreateNoteParams{
		Title:   body["title"],
		Content: body["content"],
	})
	if err != nil {
		if errs.Is(err, errs.InvalidArgument) {
			h.metrics.CreateRejected(metrics.ReasonInvalid)
		}
		writeServiceError(w, log, err)
		return
	}

	h.metrics.NoteCreated()
	log.Info("note_created", "note_id", note.ID, "title", logutil.Preview(note.Title, logPreviewRunes))
	w.Header().Set("Location", urlutil.NoteURL(r, note.ID))
	writeJSON(w, http.StatusCreated, note)
}

// ListNotes handles GET /notes, most recently updated first.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.notes.List())
}

// GetNote handles GET /notes/{id}
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, obs.From(r.Context()), err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetNoteHTML handles GET /notes/{id}/html with sanitized rendered markdown.
func (h *Handler) GetNoteHTML(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, obs.From(r.Context()), err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(notes.RenderDocument(*note))
}

// UpdateNote handles PUT /notes/{id}. Only keys present in the body are
// applied; a present non-string value counts as empty.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	log := obs.From(r.Context()).With("pkg", "api")

	body, ok := h.decodeObject(w, r)
	if !ok {
		return
	}

	var params notes.UpdateNoteParams
	if v, present := body["title"]; present {
		params.Title = notes.StringPtr(v)
	}
	if v, present := body["content"]; present {
		params.Content = notes.StringPtr(v)
	}

	id := r.PathValue("id")
	res, err := h.notes.Update(id, params)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	h.metrics.NoteUpdated(res.Changed)
	if !res.Changed {
		log.Debug("note_update_noop", "note_id", id)
		writeJSON(w, http.StatusOK, NoChangesResponse{Message: MsgNoChanges, Note: res.Note})
		return
	}
	log.Info("note_updated", "note_id", id)
	writeJSON(w, http.StatusOK, res.Note)
}

// SearchNotes handles GET /notes/search?q=...
func (h *Handler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results, err := h.notes.Search(query)
	if err != nil {
		writeServiceError(w, obs.From(r.Context()), err)
		return
	}
	h.metrics.Searched()
	obs.From(r.Context()).Debug("notes_searched",
		"pkg", "api",
		"query", logutil.Preview(query, logPreviewRunes),
		"matches", len(results),
	)
	writeJSON(w, http.StatusOK, results)
}

// decodeObject reads a JSON object body. An empty body decodes as {}.
// On failure the error response has already been written.
func (h *Handler) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, MsgInvalidJSON)
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, true
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		writeError(w, http.StatusBadRequest, MsgInvalidJSON)
		return nil, false
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		writeError(w, http.StatusBadRequest, MsgInvalidJSON)
		return nil, false
	}
	return obj, true
}

// NoChangesResponse is returned by PUT when nothing changed.
type NoChangesResponse struct {
	Message string     `json:"message"`
	Note    notes.Note `json:"note"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeErr maps a coded error to its status and client message.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, errs.HTTPStatus(errs.CodeOf(err)), errs.MessageOf(err))
}

func writeServiceError(w http.ResponseWriter, log *slog.Logger, err error) {
	if errs.CodeOf(err) == errs.Internal {
		log.Error("request_failed", "error", err)
	}
	writeErr(w, err)
}
