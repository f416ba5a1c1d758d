package shared

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address for a request. Proxy
// headers win over the socket address: the first X-Forwarded-For hop, then
// X-Real-IP, then RemoteAddr with the port stripped.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
