package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/quicknotes/internal/errs"
)

const (
	// DefaultCreateLimit is the number of note creations admitted per window.
	DefaultCreateLimit = 5

	// DefaultCreateWindow is the length of the rolling creation window.
	DefaultCreateWindow = 60 * time.Second
)

// ErrRateLimitExceeded is the cause of every rejection returned by Window.TryAdmit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Window is a sliding-window log limiter: it admits at most limit events in
// any trailing span, evaluated lazily at call time.
type Window struct {
	mu       sync.Mutex
	limit    int
	span     time.Duration
	admitted []time.Time // ascending
}

// NewWindow creates a Window admitting limit events per span.
// Non-positive arguments fall back to the creation defaults.
func NewWindow(limit int, span time.Duration) *Window {
	if limit <= 0 {
		limit = DefaultCreateLimit
	}
	if span <= 0 {
		span = DefaultCreateWindow
	}
	return &Window{
		limit:    limit,
		span:     span,
		admitted: make([]time.Time, 0, limit),
	}
}

// Limit returns the maximum number of admissions per span.
func (w *Window) Limit() int { return w.limit }

// Span returns the window length.
func (w *Window) Span() time.Duration { return w.span }

// TryAdmit prunes admissions that have aged out of the window and records now
// if fewer than limit remain. A rejected call records nothing and returns a
// ResourceExhausted error wrapping ErrRateLimitExceeded.
func (w *Window) TryAdmit(now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.admitted) >= w.limit {
		return errs.Wrap(errs.ResourceExhausted, w.message(), ErrRateLimitExceeded)
	}
	w.admitted = append(w.admitted, now)
	return nil
}

// Remaining returns how many admissions would currently succeed.
func (w *Window) Remaining(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	return w.limit - len(w.admitted)
}

// RetryAfter returns how long until the next admission can succeed, or zero
// when one would succeed now.
func (w *Window) RetryAfter(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.admitted) < w.limit {
		return 0
	}
	// The oldest survivor leaves once now-oldest reaches span.
	wait := w.admitted[len(w.admitted)-w.limit].Add(w.span).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// prune drops every admission t with now-t >= span. Caller holds w.mu.
func (w *Window) prune(now time.Time) {
	cut := 0
	for cut < len(w.admitted) && now.Sub(w.admitted[cut]) >= w.span {
		cut++
	}
	if cut == 0 {
		return
	}
	n := copy(w.admitted, w.admitted[cut:])
	w.admitted = w.admitted[:n]
}

func (w *Window) message() string {
	if w.span == time.Minute {
		return fmt.Sprintf("Rate limit exceeded: Max %d notes per minute", w.limit)
	}
	return fmt.Sprintf("Rate limit exceeded: Max %d notes per %s", w.limit, w.span)
}
