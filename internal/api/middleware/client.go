package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/clearops/internal/api/response"
)

// ClientIDHeader carries the end client a portal request is made for. The
// portal authenticates its own users; clearops trusts the header from any
// authenticated key.
const ClientIDHeader = "X-Client-ID"

// ClientIdentity parses X-Client-ID into the request context. A malformed
// header is rejected; a missing one leaves the request unscoped.
func ClientIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(ClientIDHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", ClientIDHeader+" must be a UUID", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetClientID(r.Context(), id)))
	})
}
