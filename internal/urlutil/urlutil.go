// Package urlutil resolves request origins and client addresses behind
// proxies.
package urlutil

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginFromRequest returns scheme://host for r, honoring X-Forwarded-Proto
// and X-Forwarded-Host. fallback is used when no host can be resolved.
func OriginFromRequest(r *http.Request, fallback string) string {
	base := trimBase(fallback)
	if r == nil {
		return base
	}

	host := firstHop(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = strings.TrimSpace(r.Host)
	}
	if host == "" {
		return base
	}
	return requestScheme(r) + "://" + host
}

// BuildAbsolute joins base and path. Absolute http(s) paths are returned
// unchanged.
func BuildAbsolute(base, path string) string {
	base = trimBase(base)
	switch {
	case path == "":
		return base
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	case strings.HasPrefix(path, "/"):
		return base + path
	default:
		return base + "/" + path
	}
}

// NotePath is the canonical resource path for a note.
func NotePath(id string) string {
	return "/notes/" + url.PathEscape(id)
}

// NoteURL is the absolute URL of a note as seen by the caller of r.
func NoteURL(r *http.Request, id string) string {
	return BuildAbsolute(OriginFromRequest(r, ""), NotePath(id))
}

// ClientAddr identifies the caller for throttling by the host part of
// RemoteAddr. Forwarding headers are ignored.
func ClientAddr(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// ForwardedClientAddr is ClientAddr for servers behind a trusted proxy: the
// first X-Forwarded-For hop wins when present.
func ForwardedClientAddr(r *http.Request) string {
	if r == nil {
		return ""
	}
	if hop := firstHop(r.Header.Get("X-Forwarded-For")); hop != "" {
		return hop
	}
	return ClientAddr(r)
}

// ClientKeyFunc picks the throttle key function for the proxy setting.
func ClientKeyFunc(trustProxyHeaders bool) func(*http.Request) string {
	if trustProxyHeaders {
		return ForwardedClientAddr
	}
	return ClientAddr
}

func requestScheme(r *http.Request) string {
	switch proto := firstHop(r.Header.Get("X-Forwarded-Proto")); proto {
	case "http", "https":
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func firstHop(v string) string {
	if comma := strings.IndexByte(v, ','); comma >= 0 {
		v = v[:comma]
	}
	return strings.TrimSpace(v)
}

func trimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
