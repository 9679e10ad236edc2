package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/packetmill/packetmill/internal/domain/token"
	"github.com/packetmill/packetmill/internal/service"
)

type authTokenCtxKey struct{}

// publicPaths skip authentication. Token creation stays open so an operator
// holding the passphrase can bootstrap the first token.
var publicPaths = map[string]bool{
	"/health":            true,
	"/api/v1/":           true,
	"/api/v1/auth/token": true,
}

var (
	errNoCredential  = errors.New("authorization required")
	errBadAuthHeader = errors.New("invalid authorization header")
)

// credential extracts the plaintext API token from the request. Browsers
// cannot set headers on websocket dials, so /ws reads ?token= instead of
// the usual X-API-Key or Authorization header.
func credential(r *http.Request) (string, error) {
	if r.URL.Path == "/ws" {
		if tok := r.URL.Query().Get("token"); tok != "" {
			return tok, nil
		}
		return "", errNoCredential
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoCredential
	}
	bearer, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errBadAuthHeader
	}
	return bearer, nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// Auth validates API token credentials on every request outside publicPaths.
// With authEnabled false the chain passes through untouched.
func Auth(authSvc *service.AuthService, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authEnabled || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			plain, err := credential(r)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			tok, err := authSvc.ValidateToken(r.Context(), plain)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), authTokenCtxKey{}, tok)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext returns the API token that authenticated the request,
// or nil when auth is disabled.
func TokenFromContext(ctx context.Context) *token.APIToken {
	tok, _ := ctx.Value(authTokenCtxKey{}).(*token.APIToken)
	return tok
}
