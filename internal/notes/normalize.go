package notes

import "strings"

// TextValue returns v if it is a string and "" otherwise.
func TextValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Normalize trims leading and trailing whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// StringPtr returns a pointer to the text form of v (see TextValue).
// Used by transports to mark a field as present in UpdateNoteParams.
func StringPtr(v any) *string {
	s := TextValue(v)
	return &s
}
