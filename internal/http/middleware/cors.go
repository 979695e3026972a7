package middleware

import (
	"net/http"
	"strings"
)

// CORS echoes allowlisted origins for the report endpoints. A "*" entry or
// an empty list allows any origin. Every OPTIONS request is answered with
// 204 before routing.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := len(allowedOrigins) == 0
	allow := map[string]struct{}{}
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			allow[origin] = struct{}{}
		}
	}

	const (
		allowedHeaders = "Authorization, Content-Type, X-Request-ID"
		allowedMethods = "GET, POST, OPTIONS"
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			_, listed := allow[origin]
			h := w.Header()
			switch {
			case origin != "" && (allowAny || listed):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			case origin == "" && allowAny:
				h.Set("Access-Control-Allow-Origin", "*")
			}
			if h.Get("Access-Control-Allow-Origin") != "" {
				h.Set("Access-Control-Allow-Headers", allowedHeaders)
				h.Set("Access-Control-Allow-Methods", allowedMethods)
				h.Set("Access-Control-Expose-Headers", "X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
