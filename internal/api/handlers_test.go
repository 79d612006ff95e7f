package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuitang/quicknotes/internal/clock"
	"github.com/kuitang/quicknotes/internal/metrics"
	"github.com/kuitang/quicknotes/internal/notes"
	"github.com/kuitang/quicknotes/internal/ratelimit"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

var testEpoch = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

type testServer struct {
	mux     *http.ServeMux
	clock   *clock.Fake
	svc     *notes.Service
	metrics *metrics.Metrics
}

func newTestServer(limit int, opts ...HandlerOption) *testServer {
	clk := clock.NewFake(testEpoch)
	var n atomic.Int64
	svc := notes.NewService(
		notes.WithClock(clk),
		notes.WithIDFunc(func() string { return fmt.Sprintf("note-%d", n.Add(1)) }),
	)
	m := metrics.New(svc.Count)
	mux := http.NewServeMux()
	opts = append([]HandlerOption{WithMetrics(m)}, opts...)
	NewHandler(svc, ratelimit.NewWindow(limit, time.Minute), clk, opts...).RegisterRoutes(mux)
	return &testServer{mux: mux, clock: clk, svc: svc, metrics: m}
}

func (s *testServer) do(t testingT, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) scrape(t testingT) string {
	t.Helper()
	rec := httptest.NewRecorder()
	s.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func decode[T any](t testingT, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body=%s", rec.Body.String())
	return v
}

func (s *testServer) create(t testingT, title, content string) notes.Note {
	t.Helper()
	body, err := json.Marshal(map[string]string{"title": title, "content": content})
	require.NoError(t, err)
	rec := s.do(t, http.MethodPost, "/notes", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[notes.Note](t, rec)
}

func TestCreateNote_ReturnsCreatedNote(t *testing.T) {
	s := newTestServer(5)
	rec := s.do(t, http.MethodPost, "/notes", `{"title":"  Shopping ","content":"Buy milk\n"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Equal(t, "http://example.com/notes/note-1", rec.Header().Get("Location"))
	require.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))

	note := decode[notes.Note](t, rec)
	require.Equal(t, "note-1", note.ID)
	require.Equal(t, "Shopping", note.Title)
	require.Equal(t, "Buy milk", note.Content)
	require.True(t, note.CreatedAt.Equal(testEpoch))
	require.True(t, note.UpdatedAt.Equal(note.CreatedAt))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"id", "title", "content", "created_at", "updated_at"} {
		require.Contains(t, raw, key)
	}
	require.Contains(t, s.scrape(t), "quicknotes_notes_created_total 1")
}

func TestCreateNote_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"missing title":     `{"content":"x"}`,
		"missing content":   `{"title":"x"}`,
		"blank title":       `{"title":"   ","content":"x"}`,
		"whitespace both":   `{"title":"\n","content":"\t"}`,
		"numeric title":     `{"title":42,"content":"x"}`,
		"null content":      `{"title":"x","content":null}`,
		"empty object":      `{}`,
		"array content":     `{"title":"x","content":["a"]}`,
		"empty body":        ``,
		"whitespace body":   `   `,
		"object title":      `{"title":{"a":1},"content":"x"}`,
		"boolean content":   `{"title":"x","content":true}`,
		"nested valid keys": `{"note":{"title":"x","content":"y"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(100)
			rec := s.do(t, http.MethodPost, "/notes", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "title and content required", decode[ErrorResponse](t, rec).Error)
			require.Equal(t, 0, s.svc.Count())
		})
	}
}

func TestCreateNote_MalformedJSON(t *testing.T) {
	for _, body := range []string{`{"title":`, `[1,2]`, `"just a string"`, `null`, `42`} {
		s := newTestServer(100)
		rec := s.do(t, http.MethodPost, "/notes", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		require.Equal(t, MsgInvalidJSON, decode[ErrorResponse](t, rec).Error)
	}
}

func TestCreateNote_BodyTooLarge(t *testing.T) {
	s := newTestServer(5, WithMaxBodyBytes(32))
	rec := s.do(t, http.MethodPost, "/notes", `{"title":"x","content":"`+strings.Repeat("a", 64)+`"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Equal(t, MsgBodyTooLarge, decode[ErrorResponse](t, rec).Error)
}

func TestCreateNote_RateLimited(t *testing.T) {
	s := newTestServer(5)
	for i := 0; i < 5; i++ {
		s.create(t, fmt.Sprintf("n%d", i), "body")
		s.clock.Advance(time.Second)
	}

	rec := s.do(t, http.MethodPost, "/notes", `{"title":"sixth","content":"body"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "Rate limit exceeded: Max 5 notes per minute", decode[ErrorResponse](t, rec).Error)
	// Oldest admission was at +0s; now is +5s.
	require.Equal(t, "55", rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, 5, s.svc.Count())

	// One minute after the first admission a slot frees up.
	s.clock.Set(testEpoch.Add(time.Minute))
	s.create(t, "later", "body")
	require.Contains(t, s.scrape(t), `quicknotes_create_rejected_total{reason="rate_limited"} 1`)
}

func TestCreateNote_InvalidBodyStillConsumesSlot(t *testing.T) {
	s := newTestServer(2)
	rec := s.do(t, http.MethodPost, "/notes", `{"title":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	s.create(t, "a", "b")

	rec = s.do(t, http.MethodPost, "/notes", `{"title":"c","content":"d"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCreateNote_UnparsableBodyDoesNotConsumeSlot(t *testing.T) {
	s := newTestServer(5, WithMaxBodyBytes(64))
	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/notes", `{not json`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		rec = s.do(t, http.MethodPost, "/notes", `{"title":"x","content":"`+strings.Repeat("a", 128)+`"}`)
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	}

	for i := 0; i < 5; i++ {
		s.create(t, fmt.Sprintf("n%d", i), "body")
	}

	// A full window still reports a malformed body as malformed.
	rec := s.do(t, http.MethodPost, "/notes", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, MsgInvalidJSON, decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/notes", `{"title":"sixth","content":"body"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func testCreateNote_ParseFailuresNeverAdmitted(t *rapid.T) {
	limit := rapid.IntRange(1, 5).Draw(t, "limit")
	s := newTestServer(limit)
	bodies := rapid.SliceOf(rapid.SampledFrom([]string{`{`, `[1]`, `"s"`, `42`, `null`, `{"title":`})).Draw(t, "bodies")
	for _, body := range bodies {
		rec := s.do(t, http.MethodPost, "/notes", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	for i := 0; i < limit; i++ {
		s.create(t, fmt.Sprintf("n%d", i), "body")
	}
}

func TestCreateNote_ParseFailuresNeverAdmitted(t *testing.T) {
	rapid.Check(t, testCreateNote_ParseFailuresNeverAdmitted)
}

func TestListNotes_EmptyIsArray(t *testing.T) {
	s := newTestServer(5)
	rec := s.do(t, http.MethodGet, "/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func testListNotes_MostRecentFirst(t *rapid.T) {
	s := newTestServer(1000)
	n := rapid.IntRange(1, 12).Draw(t, "n")
	var ids []string
	for i := 0; i < n; i++ {
		s.clock.Advance(time.Duration(rapid.IntRange(0, 2).Draw(t, "gap")) * time.Second)
		ids = append(ids, s.create(t, fmt.Sprintf("title %d", i), "content").ID)
	}
	touches := rapid.IntRange(0, 5).Draw(t, "touches")
	for i := 0; i < touches; i++ {
		s.clock.Advance(time.Second)
		id := rapid.SampledFrom(ids).Draw(t, "touch")
		rec := s.do(t, http.MethodPut, "/notes/"+id, fmt.Sprintf(`{"content":"edit %d"}`, i))
		if rec.Code != http.StatusOK {
			t.Fatalf("PUT failed: %d %s", rec.Code, rec.Body.String())
		}
	}

	list := decode[[]notes.Note](t, s.do(t, http.MethodGet, "/notes", ""))
	if len(list) != n {
		t.Fatalf("listed %d notes, want %d", len(list), n)
	}
	for i := 1; i < len(list); i++ {
		if list[i].UpdatedAt.After(list[i-1].UpdatedAt) {
			t.Fatalf("list out of order at %d", i)
		}
	}
}

func TestListNotes_MostRecentFirst(t *testing.T) {
	rapid.Check(t, testListNotes_MostRecentFirst)
}

func TestUpdateNote_Scenario(t *testing.T) {
	s := newTestServer(5)
	created := s.create(t, "Shopping", "Buy milk")

	s.clock.Advance(time.Second)
	rec := s.do(t, http.MethodPut, "/notes/"+created.ID, `{"content":"Buy milk and eggs"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[notes.Note](t, rec)
	require.Equal(t, "Shopping", updated.Title)
	require.Equal(t, "Buy milk and eggs", updated.Content)
	require.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	rec = s.do(t, http.MethodGet, "/notes/search?q=eggs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]notes.Note](t, rec)
	require.Len(t, results, 1)
	require.Equal(t, created.ID, results[0].ID)

	rec = s.do(t, http.MethodGet, "/notes/search?q=bread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestUpdateNote_NoChanges(t *testing.T) {
	s := newTestServer(5)
	created := s.create(t, "Shopping", "Buy milk")
	s.clock.Advance(time.Minute)

	for _, body := range []string{`{"title":"  Shopping  "}`, `{}`, ``, `{"title":"Shopping","content":"Buy milk","extra":1}`} {
		rec := s.do(t, http.MethodPut, "/notes/"+created.ID, body)
		require.Equal(t, http.StatusOK, rec.Code, "body %q", body)
		resp := decode[NoChangesResponse](t, rec)
		require.Equal(t, MsgNoChanges, resp.Message)
		require.Equal(t, created.ID, resp.Note.ID)
		require.True(t, resp.Note.UpdatedAt.Equal(created.UpdatedAt), "updated_at bumped for body %q", body)
	}
	require.Contains(t, s.scrape(t), `quicknotes_notes_updated_total{result="unchanged"} 4`)
}

func TestUpdateNote_EmptyFieldRejectsWholeUpdate(t *testing.T) {
	s := newTestServer(5)
	created := s.create(t, "Shopping", "Buy milk")

	rec := s.do(t, http.MethodPut, "/notes/"+created.ID, `{"title":"New title","content":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Content cannot be empty", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPut, "/notes/"+created.ID, `{"title":null}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Title cannot be empty", decode[ErrorResponse](t, rec).Error)

	got := decode[notes.Note](t, s.do(t, http.MethodGet, "/notes/"+created.ID, ""))
	require.Equal(t, created, got)
}

func TestUpdateNote_NotFound(t *testing.T) {
	s := newTestServer(5)
	rec := s.do(t, http.MethodPut, "/notes/does-not-exist", `{"title":"x"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Note not found", decode[ErrorResponse](t, rec).Error)
}

func TestUpdateNote_MalformedJSON(t *testing.T) {
	s := newTestServer(5)
	created := s.create(t, "a", "b")
	rec := s.do(t, http.MethodPut, "/notes/"+created.ID, `["title"]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, MsgInvalidJSON, decode[ErrorResponse](t, rec).Error)
}

func TestSearchNotes_EmptyQuery(t *testing.T) {
	s := newTestServer(5)
	for _, target := range []string{"/notes/search", "/notes/search?q=", "/notes/search?q=%20%20"} {
		rec := s.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
		require.Equal(t, "empty query", decode[ErrorResponse](t, rec).Error)
	}
}

func TestSearchNotes_InsertionOrder(t *testing.T) {
	s := newTestServer(5)
	first := s.create(t, "Milk run", "corner shop")
	s.clock.Advance(time.Second)
	second := s.create(t, "Recipes", "needs MILK")
	s.clock.Advance(time.Second)
	s.create(t, "Unrelated", "nothing")

	// Recency order now differs from insertion order.
	s.clock.Advance(time.Second)
	rec := s.do(t, http.MethodPut, "/notes/"+second.ID, `{"title":"Recipes v2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	results := decode[[]notes.Note](t, s.do(t, http.MethodGet, "/notes/search?q=milk", ""))
	require.Len(t, results, 2)
	require.Equal(t, first.ID, results[0].ID)
	require.Equal(t, second.ID, results[1].ID)
}

func TestGetNote(t *testing.T) {
	s := newTestServer(5)
	created := s.create(t, "a", "b")

	rec := s.do(t, http.MethodGet, "/notes/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, created, decode[notes.Note](t, rec))

	rec = s.do(t, http.MethodGet, "/notes/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetNoteHTML(t *testing.T) {
	s := newTestServer(5)
	created := s.create(t, "<Plan>", "# Steps\n\n<script>alert(1)</script>\n\n- one")

	rec := s.do(t, http.MethodGet, "/notes/"+created.ID+"/html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Contains(t, body, "&lt;Plan&gt;")
	require.Contains(t, body, "<li>one</li>")
	require.NotContains(t, body, "<script>")

	rec = s.do(t, http.MethodGet, "/notes/missing/html", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Note not found", decode[ErrorResponse](t, rec).Error)
}

func TestUnsupportedMethod(t *testing.T) {
	s := newTestServer(5)
	created := s.create(t, "a", "b")
	rec := s.do(t, http.MethodDelete, "/notes/"+created.ID, "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, 1, s.svc.Count())
}
