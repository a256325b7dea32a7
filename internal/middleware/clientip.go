package middleware

import (
	"context"
	"net/http"
	"strings"
)

type clientIPKeyType string

const ClientIPKey clientIPKeyType = "client_ip"

// UnknownClientIP is used when no proxy header names the caller
const UnknownClientIP = "unknown"

// DefaultTrustedIPHeader is set by the edge proxy and cannot be forged by
// clients that reach the service through it
const DefaultTrustedIPHeader = "CF-Connecting-IP"

/* ResolveClientIP picks the caller address from proxy headers in order:
 * the trusted edge header, X-Real-IP, the first X-Forwarded-For entry.
 * The connection's remote address is never used; behind a proxy it names
 * the proxy. */
func ResolveClientIP(r *http.Request, trustedHeader string) string {
	if trustedHeader != "" {
		if ip := strings.TrimSpace(r.Header.Get(trustedHeader)); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	return UnknownClientIP
}

/* ClientIPMiddleware stores the resolved client IP in the request context */
func ClientIPMiddleware(trustedHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ClientIPKey, ResolveClientIP(r, trustedHeader))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

/* GetClientIP gets the client IP from context */
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return UnknownClientIP
}
