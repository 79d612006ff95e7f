package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kuitang/quicknotes/internal/clock"
	"github.com/kuitang/quicknotes/internal/errs"
	"github.com/kuitang/quicknotes/internal/metrics"
	"github.com/kuitang/quicknotes/internal/notes"
	"github.com/kuitang/quicknotes/internal/obs"
	"github.com/kuitang/quicknotes/internal/ratelimit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultPreviewLines = 2

// Handler implements MCP tool call handling.
type Handler struct {
	notes   *notes.Service
	window  *ratelimit.Window
	clock   clock.Clock
	metrics *metrics.Metrics
}

// NewHandler creates a tool handler. note_create is admitted through
// window, the same one guarding POST /notes. m may be nil.
func NewHandler(svc *notes.Service, window *ratelimit.Window, clk clock.Clock, m *metrics.Metrics) *Handler {
	return &Handler{
		notes:   svc,
		window:  window,
		clock:   clk,
		metrics: m,
	}
}

// createToolHandler returns a tool handler function for the given tool name.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result, err := h.HandleToolCall(ctx, name, args)
		return result, nil, err
	}
}

// HandleToolCall routes tool calls to appropriate handlers. Domain
// failures come back as IsError results, never as Go errors.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	var (
		result any
		err    error
	)
	switch name {
	case ToolNoteCreate:
		result, err = h.handleNoteCreate(arguments)
	case ToolNoteList:
		result, err = h.handleNoteList(arguments)
	case ToolNoteView:
		result, err = h.handleNoteView(arguments)
	case ToolNoteUpdate:
		result, err = h.handleNoteUpdate(arguments)
	case ToolNoteSearch:
		result, err = h.handleNoteSearch(arguments)
	default:
		err = errs.Newf(errs.NotFound, "unknown tool: %s", name)
	}

	log := obs.From(ctx).With("pkg", "mcp", "tool", name)
	if err != nil {
		h.metrics.ToolCalled(name, true)
		if errs.CodeOf(err) == errs.Internal {
			log.Error("mcp_tool_failed", "error", err)
		} else {
			log.Info("mcp_tool_rejected", "code", errs.CodeOf(err), "message", errs.MessageOf(err))
		}
		return h.newToolResultError(err), nil
	}
	h.metrics.ToolCalled(name, false)
	log.Debug("mcp_tool_ok")
	return newToolResultText(marshalToolJSON(result)), nil
}

// toolErrorPayload is the JSON body of an IsError tool result.
type toolErrorPayload struct {
	Code              errs.Code `json:"code"`
	Message           string    `json:"message"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}

// newToolResultText creates a successful tool result with text content.
func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// newToolResultError creates a tool result indicating an error.
func (h *Handler) newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{
		Code:    errs.CodeOf(err),
		Message: errs.MessageOf(err),
	}
	if payload.Code == errs.ResourceExhausted {
		retry := h.window.RetryAfter(h.clock.Now())
		payload.RetryAfterSeconds = int(math.Ceil(retry.Seconds()))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: marshalToolJSON(payload)},
		},
		IsError: true,
	}
}

func marshalToolJSON(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"code":"internal","message":"failed to marshal response","detail":%q}`, err.Error())
	}
	return string(data)
}

// decodeToolArgs decodes arguments into dst, rejecting unknown fields.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "arguments are not valid JSON", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrapf(errs.InvalidArgument, err, "invalid arguments: %v", err)
	}
	return nil
}

// presentText maps a raw JSON field to UpdateNoteParams presence: nil when
// absent, otherwise its text value ("" for non-strings and null).
func presentText(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	var v any
	_ = json.Unmarshal(raw, &v)
	return notes.StringPtr(v)
}

type noteCreateResult struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	TotalLines int       `json:"total_lines"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) handleNoteCreate(args map[string]any) (any, error) {
	var in struct {
		Title   any `json:"title"`
		Content any `json:"content"`
	}

	if err := decodeToolArgs(args, &in); err != nil {
		h.metrics.CreateRejected(metrics.ReasonInvalid)
		return nil, err
	}
	if err := h.window.TryAdmit(h.clock.Now()); err != nil {
		h.metrics.CreateRejected(metrics.ReasonRateLimited)
		return nil, err
	}

	note, err := h.notes.Create(notes.CreateNoteParams{Title: in.Title, Content: in.Content})
	if err != nil {
		if errs.Is(err, errs.InvalidArgument) {
			h.metrics.CreateRejected(metrics.ReasonInvalid)
		}
		return nil, err
	}
	h.metrics.NoteCreated()

	return noteCreateResult{
		ID:         note.ID,
		Title:      note.Title,
		TotalLines: notes.CountLines(note.Content),
		CreatedAt:  note.CreatedAt,
	}, nil
}

type noteListResult struct {
	Notes      []notes.NoteListItem `json:"notes"`
	TotalCount int                  `json:"total_count"`
}

func (h *Handler) handleNoteList(args map[string]any) (any, error) {
	var in struct {
		PreviewLines *int `json:"preview_lines"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	lines := defaultPreviewLines
	if in.PreviewLines != nil {
		if *in.PreviewLines < 0 {
			return nil, errs.New(errs.InvalidArgument, "preview_lines must not be negative")
		}
		lines = *in.PreviewLines
	}

	all := h.notes.List()
	return noteListResult{Notes: listItems(all, lines), TotalCount: len(all)}, nil
}

type noteViewResult struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	TotalLines int       `json:"total_lines"`
	LineRange  *[2]int   `json:"line_range,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (h *Handler) handleNoteView(args map[string]any) (any, error) {
	var in struct {
		ID        string `json:"id"`
		LineRange []int  `json:"line_range"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	if in.LineRange != nil && len(in.LineRange) != 2 {
		return nil, errs.New(errs.InvalidArgument, "line_range must be [start, end]")
	}

	note, err := h.notes.Get(in.ID)
	if err != nil {
		return nil, err
	}

	start, end := 0, -1
	if in.LineRange != nil {
		start, end = in.LineRange[0], in.LineRange[1]
	}
	formatted, total := notes.FormatWithLineNumbers(note.Content, start, end)

	result := noteViewResult{
		ID:         note.ID,
		Title:      note.Title,
		Content:    formatted,
		TotalLines: total,
		CreatedAt:  note.CreatedAt,
		UpdatedAt:  note.UpdatedAt,
	}
	if in.LineRange != nil {
		result.LineRange = &[2]int{start, end}
	}
	return result, nil
}

type noteUpdateResult struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	TotalLines int       `json:"total_lines"`
	Changed    bool      `json:"changed"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (h *Handler) handleNoteUpdate(args map[string]any) (any, error) {
	var in struct {
		ID      string          `json:"id"`
		Title   json.RawMessage `json:"title"`
		Content json.RawMessage `json:"content"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	res, err := h.notes.Update(in.ID, notes.UpdateNoteParams{
		Title:   presentText(in.Title),
		Content: presentText(in.Content),
	})
	if err != nil {
		return nil, err
	}
	h.metrics.NoteUpdated(res.Changed)

	return noteUpdateResult{
		ID:         res.Note.ID,
		Title:      res.Note.Title,
		TotalLines: notes.CountLines(res.Note.Content),
		Changed:    res.Changed,
		UpdatedAt:  res.Note.UpdatedAt,
	}, nil
}

type noteSearchResult struct {
	Query      string               `json:"query"`
	Notes      []notes.NoteListItem `json:"notes"`
	TotalCount int                  `json:"total_count"`
}

func (h *Handler) handleNoteSearch(args map[string]any) (any, error) {
	var in struct {
		Query any `json:"query"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	query := notes.TextValue(in.Query)
	found, err := h.notes.Search(query)
	if err != nil {
		return nil, err
	}
	h.metrics.Searched()
	return noteSearchResult{
		Query:      notes.Normalize(query),
		Notes:      listItems(found, defaultPreviewLines),
		TotalCount: len(found),
	}, nil
}

func listItems(all []notes.Note, previewLines int) []notes.NoteListItem {
	items := make([]notes.NoteListItem, 0, len(all))
	for _, n := range all {
		items = append(items, n.ListItem(previewLines))
	}
	return items
}
