package obs

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/quicknotes/internal/logutil"
)

// ResponseRecorder tracks the status and size of a response.
type ResponseRecorder struct {
	http.ResponseWriter
	statusCode  int
	respBytes   int64
	wroteHeader bool
}

type responseRecorderWithFlusher struct {
	*ResponseRecorder
}

func (r *ResponseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.statusCode = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *ResponseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(p)
	r.respBytes += int64(n)
	return n, err
}

func (r *ResponseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *responseRecorderWithFlusher) Flush() {
	r.ResponseWriter.(http.Flusher).Flush()
}

func (r *ResponseRecorder) StatusCode() int { return r.statusCode }

func (r *ResponseRecorder) RespBytes() int64 { return r.respBytes }

func (r *ResponseRecorder) WroteHeader() bool { return r.wroteHeader }

// NewResponseRecorder wraps w, keeping http.Flusher when w has it.
func NewResponseRecorder(w http.ResponseWriter) (http.ResponseWriter, *ResponseRecorder) {
	recorder := &ResponseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
	if _, ok := w.(http.Flusher); ok {
		return &responseRecorderWithFlusher{ResponseRecorder: recorder}, recorder
	}
	return recorder, recorder
}

// RequestContextMiddleware assigns a request id (echoed in X-Request-Id)
// and stores correlation fields in the request context.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := extractTraceID(r.Header.Get("traceparent"))

		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = traceID
		}
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := WithCorrelation(r.Context(), Correlation{
			RequestID:    requestID,
			TraceID:      traceID,
			MCPSessionID: strings.TrimSpace(r.Header.Get("Mcp-Session-Id")),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLogMiddleware emits one http_access event per request. Server
// errors log at warn; request headers (redacted) are added at debug.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, recorder := NewResponseRecorder(w)
		next.ServeHTTP(wrapped, r)

		l := From(r.Context()).With("pkg", pkg)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.StatusCode(),
			"dur_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"req_bytes", max(r.ContentLength, 0),
			"resp_bytes", recorder.RespBytes(),
		}
		switch {
		case recorder.StatusCode() >= http.StatusInternalServerError:
			l.Warn("http_access", attrs...)
		case l.Enabled(r.Context(), slog.LevelDebug):
			l.Debug("http_access", append(attrs, logutil.HeaderAttr("headers", r.Header))...)
		default:
			l.Info("http_access", attrs...)
		}
	})
}

func extractTraceID(traceparent string) string {
	parts := strings.Split(strings.TrimSpace(traceparent), "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == strings.Repeat("0", 32) {
		return ""
	}
	for i := 0; i < len(traceID); i++ {
		ch := traceID[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
