// Command server runs the quicknotes HTTP service: the notes REST API, the
// MCP tool endpoint and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/kuitang/quicknotes/internal/api"
	"github.com/kuitang/quicknotes/internal/clock"
	"github.com/kuitang/quicknotes/internal/config"
	"github.com/kuitang/quicknotes/internal/errs"
	"github.com/kuitang/quicknotes/internal/mcp"
	"github.com/kuitang/quicknotes/internal/metrics"
	"github.com/kuitang/quicknotes/internal/notes"
	"github.com/kuitang/quicknotes/internal/obs"
	"github.com/kuitang/quicknotes/internal/ratelimit"
	"github.com/kuitang/quicknotes/internal/urlutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	fs := flag.NewFlagSet("quicknotes", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags, err := config.ParseFlags(fs, args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}

	obs.Init(cfg.LogLevel)
	log := obs.Pkg("server")
	cfg.WriteSummary(stderr)

	a := newApp(cfg, clock.System())
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", ln.Addr().String(), "version", version)
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_shutting_down", "timeout", cfg.ShutdownTimeout.String())
	a.draining.Store(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server_stopped")
	return nil
}

// app wires the store, the creation window and the transports together.
type app struct {
	handler  http.Handler
	throttle *ratelimit.RateLimiter
	notes    *notes.Service
	draining atomic.Bool
}

func newApp(cfg *config.Config, clk clock.Clock) *app {
	a := &app{
		notes:    notes.NewService(notes.WithClock(clk)),
		throttle: ratelimit.NewRateLimiter(cfg.ClientRateLimit),
	}
	window := ratelimit.NewWindow(cfg.CreateLimit, cfg.CreateWindow)

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New(a.notes.Count)
	}

	// Routes behind the per-client throttle.
	notesMux := http.NewServeMux()
	api.NewHandler(a.notes, window, clk,
		api.WithMetrics(m),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
	).RegisterRoutes(notesMux)
	if cfg.EnableMCP {
		mountMCPRoute(notesMux, "/mcp", mcp.NewServer(mcp.NewHandler(a.notes, window, clk, m), version))
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /health", a.health)
	if cfg.EnableMetrics {
		root.Handle("GET /metrics", m.Handler())
	}
	root.Handle("/", ratelimit.Middleware(a.throttle, urlutil.ClientKeyFunc(cfg.TrustProxyHeaders))(notesMux))

	a.handler = obs.RequestContextMiddleware(
		obs.AccessLogMiddleware("http", m.Middleware(root)),
	)
	return a
}

func (a *app) Handler() http.Handler { return a.handler }

// Close stops background work owned by the app.
func (a *app) Close() {
	a.throttle.Stop()
}

func (a *app) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if a.draining.Load() {
		w.WriteHeader(errs.HTTPStatus(errs.Unavailable))
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// mountMCPRoute registers every Streamable HTTP method on path.
func mountMCPRoute(mux *http.ServeMux, path string, handler http.Handler) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		mux.Handle(method+" "+path, handler)
	}
}
