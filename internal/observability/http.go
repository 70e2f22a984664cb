package observability

import (
	"net"
	"net/http"
	"strings"
)

// Request metadata helpers shared by the messaging HTTP and websocket
// surfaces; the values end up on audit events and connection info.

// DeviceIDFromRequest returns the client device id header, when the
// marketplace app sends one.
func DeviceIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

// RequestIDFromRequest returns the upstream request id header.
func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// IPFromRequest resolves the client address, preferring the first
// X-Forwarded-For hop set by the marketplace edge.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
