// Package config loads server configuration from defaults, .env files,
// environment variables and CLI flags, in increasing priority.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kuitang/quicknotes/internal/obs"
	"github.com/kuitang/quicknotes/internal/ratelimit"
)

const (
	defaultPort            = "3000"
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxBodyBytes    = 1 << 20
)

// DefaultEnvFiles are read by LoadDotEnv when no files are given.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	LogLevel        slog.Level

	// Note creation window
	CreateLimit  int
	CreateWindow time.Duration

	// Per-client request throttle
	ClientRateLimit ratelimit.Config
	// Key the throttle on X-Forwarded-For; only safe behind a proxy that
	// overwrites the header.
	TrustProxyHeaders bool

	// Optional surfaces, switched off by --no-mcp and --no-metrics
	EnableMCP     bool
	EnableMetrics bool
}

// Flags are the command line overrides.
type Flags struct {
	Addr      string
	LogLevel  string
	NoMCP     bool
	NoMetrics bool
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags registers and parses the server flags on fs.
func ParseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fs.StringVar(&f.Addr, "addr", "", "Listen address (overrides LISTEN_ADDR and PORT)")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	fs.BoolVar(&f.NoMCP, "no-mcp", false, "Do not mount the MCP endpoint")
	fs.BoolVar(&f.NoMetrics, "no-metrics", false, "Do not serve Prometheus metrics")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// LoadDotEnv loads variables from the given .env files (DefaultEnvFiles if
// none). Missing files are skipped and variables already set in the
// environment are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// LoadConfig builds a validated Config from the process environment and
// flag values.
func LoadConfig(flags Flags) (*Config, error) {
	return load(flags, os.Getenv)
}

func load(flags Flags, getenv func(string) string) (*Config, error) {
	p := envParser{getenv: getenv}
	cfg := &Config{
		EnableMCP:     !flags.NoMCP,
		EnableMetrics: !flags.NoMetrics,
	}

	// Server settings
	cfg.ListenAddr = strings.TrimSpace(getenv("LISTEN_ADDR"))
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":" + p.str("PORT", defaultPort)
	}
	if flags.Addr != "" {
		cfg.ListenAddr = flags.Addr
	}
	cfg.ShutdownTimeout = p.duration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	cfg.MaxBodyBytes = int64(p.int("MAX_BODY_BYTES", defaultMaxBodyBytes))

	levelText := p.str("LOG_LEVEL", "info")
	if flags.LogLevel != "" {
		levelText = flags.LogLevel
	}
	level, err := obs.ParseLevel(levelText)
	if err != nil {
		p.problems = append(p.problems, "LOG_LEVEL: "+err.Error())
	}
	cfg.LogLevel = level

	// Creation window
	cfg.CreateLimit = p.int("CREATE_RATE_LIMIT", ratelimit.DefaultCreateLimit)
	cfg.CreateWindow = p.duration("CREATE_RATE_WINDOW", ratelimit.DefaultCreateWindow)

	// Client throttle
	def := ratelimit.DefaultConfig
	cfg.ClientRateLimit = ratelimit.Config{
		RPS:             p.float("CLIENT_RATE_RPS", def.RPS),
		Burst:           p.int("CLIENT_RATE_BURST", def.Burst),
		CleanupInterval: p.duration("CLIENT_RATE_CLEANUP_INTERVAL", def.CleanupInterval),
	}
	cfg.TrustProxyHeaders = p.bool("TRUST_PROXY_HEADERS", false)

	problems := append(p.problems, cfg.problems()...)
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	return cfg, nil
}

// Validate checks that all configured values are usable.
func (c *Config) Validate() error {
	if problems := c.problems(); len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

func (c *Config) problems() []string {
	var errs []string
	if c.ListenAddr == "" {
		errs = append(errs, "listen address must not be empty (set PORT, LISTEN_ADDR or --addr)")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, "MAX_BODY_BYTES must be positive")
	}
	if c.CreateLimit <= 0 {
		errs = append(errs, "CREATE_RATE_LIMIT must be positive")
	}
	if c.CreateWindow <= 0 {
		errs = append(errs, "CREATE_RATE_WINDOW must be positive")
	}
	if c.ClientRateLimit.RPS > 0 && c.ClientRateLimit.Burst <= 0 {
		errs = append(errs, "CLIENT_RATE_BURST must be positive when CLIENT_RATE_RPS is set")
	}
	if c.ClientRateLimit.CleanupInterval <= 0 {
		errs = append(errs, "CLIENT_RATE_CLEANUP_INTERVAL must be positive")
	}
	return errs
}

// WriteSummary prints a human-readable summary of the configuration.
func (c *Config) WriteSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "quicknotes server starting...")
	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(w, "  Create:   %d notes per %s\n", c.CreateLimit, c.CreateWindow)
	if c.ClientRateLimit.Enabled() {
		fmt.Fprintf(w, "  Throttle: %g rps, burst %d (client from %s)\n",
			c.ClientRateLimit.RPS, c.ClientRateLimit.Burst, clientSource(c.TrustProxyHeaders))
	} else {
		fmt.Fprintln(w, "  Throttle: off")
	}
	fmt.Fprintf(w, "  MCP:      %s\n", onOff(c.EnableMCP))
	fmt.Fprintf(w, "  Metrics:  %s\n", onOff(c.EnableMetrics))
	fmt.Fprintf(w, "  Log:      %s\n", c.LogLevel)
	fmt.Fprintln(w, "")
}

func clientSource(trustProxyHeaders bool) string {
	if trustProxyHeaders {
		return "X-Forwarded-For"
	}
	return "remote address"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// envParser reads typed values, collecting malformed ones as problems.
type envParser struct {
	getenv   func(string) string
	problems []string
}

func (p *envParser) str(key, defaultValue string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func (p *envParser) int(key string, defaultValue int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not an integer", key, v))
		return defaultValue
	}
	return parsed
}

func (p *envParser) bool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return defaultValue
	}
	return parsed
}

func (p *envParser) float(key string, defaultValue float64) float64 {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not a number", key, v))
		return defaultValue
	}
	return parsed
}

func (p *envParser) duration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		p.problems = append(p.problems, fmt.Sprintf("%s: %q is not a duration", key, v))
		return defaultValue
	}
	return parsed
}
