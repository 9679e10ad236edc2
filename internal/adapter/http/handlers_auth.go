package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/token"
)

// CreateAPIToken handles POST /api/v1/auth/token
//
// Exchanges the operator passphrase for a new API token. The plaintext
// appears once in the response.
func (h *Handlers) CreateAPIToken(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[token.CreateRequest](w, r)
	if !ok {
		return
	}

	res, err := h.Auth.CreateToken(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeDomainError(w, err, "invalid token request")
			return
		}
		// Wrong passphrase and missing setup both collapse to the same
		// answer; the details stay in the log.
		slog.Debug("token mint failed", "name", req.Name, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListAPITokens handles GET /api/v1/auth/tokens
func (h *Handlers) ListAPITokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.Auth.ListTokens(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if tokens == nil {
		tokens = []token.APIToken{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

// RevokeAPIToken handles DELETE /api/v1/auth/tokens/{id}
func (h *Handlers) RevokeAPIToken(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Auth.RevokeToken(r.Context(), id); err != nil {
		writeDomainError(w, err, "token not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
