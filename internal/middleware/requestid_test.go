package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/packetmill/packetmill/internal/logger"
)

// trace runs one request through RequestID and reports the ID the handler
// saw in its context alongside the one echoed in the response header.
func trace(t *testing.T, prepare func(*http.Request)) (ctxID, headerID string) {
	t.Helper()
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get("X-Request-ID")
}

func TestRequestIDMintsUUID(t *testing.T) {
	ctxID, headerID := trace(t, nil)
	if _, err := uuid.Parse(headerID); err != nil {
		t.Fatalf("header carries %q, want a UUID: %v", headerID, err)
	}
	if ctxID != headerID {
		t.Fatalf("handler saw %q, response header says %q", ctxID, headerID)
	}
}

func TestRequestIDKeepsInboundID(t *testing.T) {
	const inbound = "trace-4711"
	ctxID, headerID := trace(t, func(r *http.Request) {
		r.Header.Set("X-Request-ID", inbound)
	})
	if ctxID != inbound || headerID != inbound {
		t.Fatalf("inbound ID not carried through: ctx=%q header=%q", ctxID, headerID)
	}
}

func TestRequestIDReplacesOversizedID(t *testing.T) {
	_, headerID := trace(t, func(r *http.Request) {
		r.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	})
	if _, err := uuid.Parse(headerID); err != nil {
		t.Fatalf("oversized inbound ID survived, header %q: %v", headerID, err)
	}
}
