// Package middleware provides HTTP middleware for PacketMill.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/packetmill/packetmill/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestID tags every request with an ID for log correlation. A well-formed
// inbound X-Request-ID is honored so IDs survive proxy hops; anything absent
// or oversized is replaced with a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
