// Package token defines the API token entity used by the control surface.
package token

import (
	"errors"
	"time"
)

// Prefix is prepended to generated API tokens for identification.
const Prefix = "pmk_"

// APIToken represents a stored API token. Only the SHA-256 hash is persisted;
// the plaintext is shown once at creation time.
type APIToken struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TokenPrefix string    `json:"token_prefix"` // first chars for display
	KeyHash     string    `json:"-"`            // SHA-256 hash, never serialized
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry. Tokens without an
// expiry never expire.
func (t *APIToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// CreateRequest is the input for minting a new API token.
type CreateRequest struct {
	Passphrase string `json:"passphrase"` //nolint:gosec // request field, not a hardcoded secret
	Name       string `json:"name"`
	ExpiresIn  int    `json:"expires_in,omitempty"` // seconds; 0 = no expiry
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.ExpiresIn < 0 {
		return errors.New("expires_in must be non-negative")
	}
	return nil
}

// CreateResponse is returned after creating a token. PlainToken is only
// returned once.
type CreateResponse struct {
	Token      APIToken `json:"token"`
	PlainToken string   `json:"plain_token"`
}
