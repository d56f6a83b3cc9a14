package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"custodia/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and User-Agent from the request and
// adds them to the context. The raw User-Agent is kept verbatim for audit
// forensics; a parsed browser/OS summary is added alongside it. Apply early
// in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithClientIP(ctx, clientIPFromRequest(r))

		if raw := r.Header.Get("User-Agent"); raw != "" {
			ctx = requestcontext.WithUserAgent(ctx, raw)
			ctx = requestcontext.WithDevice(ctx, describeUserAgent(raw))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// describeUserAgent renders a raw UA string as "Browser version on OS".
// Unparseable strings fall back to the raw value truncated.
func describeUserAgent(raw string) string {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		if len(raw) > 64 {
			return raw[:64]
		}
		return raw
	}
	if os := ua.OS(); os != "" {
		return fmt.Sprintf("%s %s on %s", name, version, os)
	}
	return fmt.Sprintf("%s %s", name, version)
}

// clientIPFromRequest extracts the real client IP, handling proxies.
func clientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs; the first is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" (IPv6: "[::1]:port"); strip the port.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
