package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint derives the websocket URL for path from a page origin,
// e.g. https://books.example.com + /ws/processing gives
// wss://books.example.com/ws/processing
func Endpoint(origin, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("invalid origin %q: missing host", origin)
	}

	var scheme string
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
		scheme = "ws"
	default:
		return "", fmt.Errorf("invalid origin %q: unsupported scheme %q", origin, u.Scheme)
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return scheme + "://" + u.Host + path, nil
}
