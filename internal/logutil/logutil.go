// Package logutil prepares untrusted request data for structured logs.
package logutil

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"unicode/utf8"
)

const redacted = "[REDACTED]"

var sensitiveFragments = []string{"token", "secret", "password", "apikey", "cookie", "auth", "session"}

// IsSensitiveKey reports whether a header or field name likely carries a
// credential. Case, '-' and '_' are ignored.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer("-", "", "_", "").Replace(k)
	for _, frag := range sensitiveFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// HeaderAttr returns the headers as a sorted slog group with sensitive
// values replaced.
func HeaderAttr(name string, headers http.Header) slog.Attr {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]any, 0, len(keys))
	for _, k := range keys {
		v := strings.Join(headers.Values(k), ", ")
		if IsSensitiveKey(k) {
			v = redacted
		}
		attrs = append(attrs, slog.String(strings.ToLower(k), v))
	}
	return slog.Group(name, attrs...)
}

// Preview returns a single-line form of s cut to at most maxRunes runes.
// Note text and search queries go through this before being logged.
func Preview(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "…"
}
