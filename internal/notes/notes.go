// Package notes holds the in-memory note collection and the rules for
// creating, updating, listing and searching notes.
package notes

import (
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kuitang/quicknotes/internal/clock"
	"github.com/kuitang/quicknotes/internal/errs"
)

// Error messages surfaced to clients.
const (
	MsgTitleContentRequired = "title and content required"
	MsgTitleEmpty           = "Title cannot be empty"
	MsgContentEmpty         = "Content cannot be empty"
	MsgEmptyQuery           = "empty query"
	MsgNoteNotFound         = "Note not found"
)

// IDFunc produces a new unique note identifier.
type IDFunc func() string

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for note timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDFunc sets the identifier generator.
func WithIDFunc(f IDFunc) Option {
	return func(s *Service) { s.newID = f }
}

// Service owns every note for the lifetime of the process.
// Safe for concurrent use; writers are serialized.
type Service struct {
	mu    sync.RWMutex
	notes []*Note // insertion order
	byID  map[string]*Note

	clock clock.Clock
	newID IDFunc
}

// NewService creates an empty note store.
func NewService(opts ...Option) *Service {
	s := &Service{
		byID:  make(map[string]*Note),
		clock: clock.System(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a new note.
func (s *Service) Create(params CreateNoteParams) (*Note, error) {
	title := Normalize(TextValue(params.Title))
	content := Normalize(TextValue(params.Content))
	if title == "" || content == "" {
		return nil, errs.New(errs.InvalidArgument, MsgTitleContentRequired)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, taken := s.byID[id]; taken {
		return nil, errs.New(errs.Internal, "generated note id collides with an existing note")
	}

	now := s.clock.Now()
	note := &Note{
		ID:        id,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.notes = append(s.notes, note)
	s.byID[id] = note

	out := *note
	return &out, nil
}

// Get returns a copy of the note with the given id.
func (s *Service) Get(id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.byID[id]
	if !ok {
		return nil, errs.New(errs.NotFound, MsgNoteNotFound)
	}
	out := *note
	return &out, nil
}

// List returns a snapshot of all notes, most recently updated first.
// Notes with equal UpdatedAt keep insertion order.
func (s *Service) List() []Note {
	s.mu.RLock()
	out := s.snapshotLocked()
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Note) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out
}

// Update applies the present fields of params to the note with the given id.
// All present fields are validated before anything is assigned, so a failed
// update leaves the note untouched.
func (s *Service) Update(id string, params UpdateNoteParams) (*UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.byID[id]
	if !ok {
		return nil, errs.New(errs.NotFound, MsgNoteNotFound)
	}

	var title, content *string
	if params.Title != nil {
		t := Normalize(*params.Title)
		if t == "" {
			return nil, errs.New(errs.InvalidArgument, MsgTitleEmpty)
		}
		title = &t
	}
	if params.Content != nil {
		c := Normalize(*params.Content)
		if c == "" {
			return nil, errs.New(errs.InvalidArgument, MsgContentEmpty)
		}
		content = &c
	}

	changed := false
	if title != nil && *title != note.Title {
		note.Title = *title
		changed = true
	}
	if content != nil && *content != note.Content {
		note.Content = *content
		changed = true
	}
	if changed {
		now := s.clock.Now()
		if now.Before(note.CreatedAt) {
			now = note.CreatedAt
		}
		note.UpdatedAt = now
	}

	return &UpdateResult{Note: *note, Changed: changed}, nil
}

// Search returns notes whose title or content contains query,
// case-insensitively. Results are in store (insertion) order, not recency
// order like List.
func (s *Service) Search(query string) ([]Note, error) {
	q := strings.ToLower(Normalize(query))
	if q == "" {
		return nil, errs.New(errs.InvalidArgument, MsgEmptyQuery)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Note, 0)
	for _, note := range s.notes {
		if strings.Contains(strings.ToLower(note.Title), q) ||
			strings.Contains(strings.ToLower(note.Content), q) {
			out = append(out, *note)
		}
	}
	return out, nil
}

// Count returns the number of stored notes.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

func (s *Service) snapshotLocked() []Note {
	out := make([]Note, len(s.notes))
	for i, note := range s.notes {
		out[i] = *note
	}
	return out
}
