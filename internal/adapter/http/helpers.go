package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/packetmill/packetmill/internal/domain"
)

// maxRequestBodySize caps JSON request bodies. Packet bodies carry prompt
// text and file lists, never artifacts, so 1 MB is generous.
const maxRequestBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError translates domain sentinel errors into HTTP statuses.
// Anything unrecognized becomes a 500 with the detail kept server-side.
func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, domain.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "packet already has an active run")
	case errors.Is(err, domain.ErrPacketBusy):
		writeError(w, http.StatusConflict, "packet has an active run")
	case errors.Is(err, domain.ErrBatchActive):
		writeError(w, http.StatusConflict, "a batch is already running for this project")
	case errors.Is(err, domain.ErrQueueDuplicate):
		writeError(w, http.StatusConflict, "project is already queued")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource was modified by another request")
	case strings.Contains(err.Error(), "invalid input syntax"):
		writeError(w, http.StatusBadRequest, "invalid identifier format")
	default:
		slog.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeInternalError logs the actual error server-side and returns a generic
// message to the client.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// readJSON decodes a JSON request body into T, enforcing the body cap and
// writing the failure response itself. The bool reports whether decoding
// succeeded.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	err := json.NewDecoder(r.Body).Decode(&v)
	if err == nil {
		return v, true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "request body is required")
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		writeError(w, http.StatusBadRequest, "invalid request body")
	}
	return v, false
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// requireField rejects the request when a mandatory field came in empty.
func requireField(w http.ResponseWriter, value, name string) bool {
	if strings.TrimSpace(value) != "" {
		return true
	}
	writeError(w, http.StatusBadRequest, name+" is required")
	return false
}
