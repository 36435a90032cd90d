package middleware

import (
	"net/http"
	"regexp"

	"fairgate/internal/domain"
)

// Inbound ids are reused only if they are plain identifier text. Anything
// else is replaced, since the id is echoed into logs and ledger payloads.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// RequestID assigns a correlation id to each request. A well-formed incoming
// X-Request-ID is reused so upstream proxies stay correlated; otherwise a
// new id is generated. The id is echoed on the response and stored in the
// context, where handlers fold it into ledger event payloads.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(id) {
			id = domain.NewID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(domain.WithRequestID(r.Context(), id)))
	})
}
