// Package mcp exposes the note store as Model Context Protocol tools over
// the Streamable HTTP transport.
package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/quicknotes/internal/logutil"
	"github.com/kuitang/quicknotes/internal/obs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerName is reported to clients during initialization.
const ServerName = "quicknotes"

// Server serves the note tools over Streamable HTTP.
type Server struct {
	httpHandler http.Handler
}

// NewServer registers the note tools and prompts on a new MCP server.
func NewServer(handler *Handler, version string) *Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version,
		},
		nil,
	)

	for _, tool := range ToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}
	registerPrompts(mcpServer)

	// Stateless JSON responses: every POST carries a full JSON-RPC exchange
	// and no session survives between requests.
	httpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)

	return &Server{httpHandler: httpHandler}
}

// ServeHTTP implements http.Handler for Streamable HTTP transport
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	log := obs.From(r.Context()).With("pkg", "mcp")
	log.Debug("mcp_request",
		"method", r.Method,
		"user_agent", r.UserAgent(),
		logutil.HeaderAttr("headers", r.Header),
	)

	wrapped, recorder := obs.NewResponseRecorder(w)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("mcp_handler_panic", "panic", rec)
			if !recorder.WroteHeader() {
				writeJSONError(wrapped, http.StatusInternalServerError, "Internal server error")
			}
			return
		}
		if !recorder.WroteHeader() {
			log.Error("mcp_handler_no_response", "method", r.Method)
			writeJSONError(wrapped, http.StatusInternalServerError, "MCP handler returned without writing response")
			return
		}
		if recorder.StatusCode() >= http.StatusBadRequest {
			log.Warn("mcp_request_failed", "method", r.Method, "status", recorder.StatusCode())
		}
	}()

	s.httpHandler.ServeHTTP(wrapped, r)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
