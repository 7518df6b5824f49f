package transport

import (
	"fmt"
	"net/url"
)

// NormalizeEndpoint parses a raw endpoint URL and rewrites its scheme into
// the websocket domain: http becomes ws, https becomes wss, and ws/wss pass
// through untouched, so normalizing an already-normalized URL is a no-op.
// Any other scheme is rejected with an UnsupportedSchemeError.
func NormalizeEndpoint(raw string) (*url.URL, error) {
	endpoint, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed endpoint url %s: %w", raw, err)
	}

	switch endpoint.Scheme {
	case "http":
		endpoint.Scheme = "ws"
	case "https":
		endpoint.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, &UnsupportedSchemeError{Scheme: endpoint.Scheme}
	}

	return endpoint, nil
}
