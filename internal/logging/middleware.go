package logging

import "net/http"

// RequestIDHeader carries the request ID across service boundaries.
const RequestIDHeader = "X-Request-Id"

// RequestID is middleware that attaches a request ID to the context and
// echoes it on the response. An inbound header wins so IDs survive
// proxies; otherwise a fresh one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
