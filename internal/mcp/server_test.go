package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// parseRPCBody accepts either a plain JSON body or an SSE stream and
// returns the first JSON-RPC message.
func parseRPCBody(t *testing.T, body string) map[string]any {
	t.Helper()
	payload := strings.TrimSpace(body)
	if !strings.HasPrefix(payload, "{") {
		for _, line := range strings.Split(body, "\n") {
			if data, ok := strings.CutPrefix(line, "data:"); ok {
				payload = strings.TrimSpace(data)
				break
			}
		}
	}
	var msg map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &msg), "body=%s", body)
	return msg
}

func postRPC(t *testing.T, h http.Handler, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	return parseRPCBody(t, rec.Body.String())
}

func TestServer_ToolsListAndCall(t *testing.T) {
	h, svc, _ := setupHandler(5)
	server := NewServer(h, "test")

	listed := postRPC(t, server, `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	require.NotContains(t, listed, "error")
	result := listed["result"].(map[string]any)
	tools := result["tools"].([]any)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	require.ElementsMatch(t, []string{ToolNoteCreate, ToolNoteList, ToolNoteView, ToolNoteUpdate, ToolNoteSearch}, names)

	called := postRPC(t, server, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"note_create","arguments":{"title":"Shopping","content":"Buy milk"}}}`)
	require.NotContains(t, called, "error")
	callResult := called["result"].(map[string]any)
	require.NotEqual(t, true, callResult["isError"])
	require.Equal(t, 1, svc.Count())
}

func TestServeHTTP_OptionsPreflight(t *testing.T) {
	server := &Server{httpHandler: http.NotFoundHandler()}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/mcp", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestServeHTTP_RecoversPanicWith500(t *testing.T) {
	server := &Server{
		httpHandler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("simulated panic")
		}),
	}

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	require.Equal(t, "Internal server error", decodeErrorBody(t, resp))
}

func TestServeHTTP_NoWriteFromDelegateReturns500(t *testing.T) {
	server := &Server{
		httpHandler: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	}

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resp := httptest.NewRecorder()
	server.ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	require.Equal(t, "MCP handler returned without writing response", decodeErrorBody(t, resp))
}

func decodeErrorBody(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), "body=%s", resp.Body.String())
	return body.Error
}
