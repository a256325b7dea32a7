package middleware

import (
	"net/http"
	"strings"
)

// CORSOptions lists what cross-origin callers may send
type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// CORSHandler wraps the whole router rather than being added with
// router.Use, so preflights get an answer even on routes gorilla/mux would
// otherwise reject with 405. Preflights get 200 and no body.
func CORSHandler(opts CORSOptions, next http.Handler) http.Handler {
	methods := strings.Join(opts.AllowedMethods, ", ")
	headers := strings.Join(opts.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORSHeaders(w, r, opts.AllowedOrigins, methods, headers)

		// Preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetCORSHeaders writes the Access-Control-* response headers
func SetCORSHeaders(w http.ResponseWriter, r *http.Request, allowedOrigins []string, methods, headers string) {
	origin := r.Header.Get("Origin")
	allowed := false
	allowAll := false

	for _, allowedOrigin := range allowedOrigins {
		if allowedOrigin == "*" {
			allowAll = true
			allowed = true
			break
		} else if allowedOrigin == origin {
			allowed = true
			break
		}
	}

	if allowed {
		if allowAll {
			// a wildcard never carries credentials
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
	}

	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", headers)
}
