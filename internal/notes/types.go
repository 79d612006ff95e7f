package notes

import (
	"time"
)

// Note is a titled piece of text with creation and update timestamps.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateNoteParams contains parameters for creating a note.
// Values are raw decoded input; anything that is not a string counts as empty.
type CreateNoteParams struct {
	Title   any `json:"title"`
	Content any `json:"content"`
}

// UpdateNoteParams contains parameters for updating a note.
// A nil pointer means the field was absent from the request.
type UpdateNoteParams struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// UpdateResult is the outcome of Update. Changed is false when every present
// field already matched the stored value; UpdatedAt is untouched in that case.
type UpdateResult struct {
	Note    Note `json:"note"`
	Changed bool `json:"changed"`
}

// NoteListItem represents a note in a list with preview instead of full content
type NoteListItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Preview    string    `json:"preview"`
	TotalLines int       `json:"total_lines"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListItem converts a note to its preview form.
func (n Note) ListItem(previewLines int) NoteListItem {
	return NoteListItem{
		ID:         n.ID,
		Title:      n.Title,
		Preview:    ContentPreview(n.Content, previewLines),
		TotalLines: CountLines(n.Content),
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}
