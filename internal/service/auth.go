package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/packetmill/packetmill/internal/domain"
	"github.com/packetmill/packetmill/internal/domain/token"
	"github.com/packetmill/packetmill/internal/port/database"
)

// passphraseKey is the settings key holding the bcrypt hash of the admin
// passphrase. It is seeded out of band by the admin CLI.
const passphraseKey = "auth.passphrase_hash"

// rawTokenBytes is the entropy minted into each API token; hex encoding
// doubles it on the wire.
const rawTokenBytes = 32

// errInvalidToken deliberately covers unknown and expired tokens alike.
var errInvalidToken = errors.New("invalid token")

// AuthService manages the control-surface credentials: one admin passphrase
// (bcrypt hash in settings) that mints API tokens, and the tokens themselves
// (random, hashed at rest, shown once).
type AuthService struct {
	store database.Store
}

// NewAuthService creates a new AuthService.
func NewAuthService(store database.Store) *AuthService {
	return &AuthService{store: store}
}

// SetPassphrase hashes and stores the admin passphrase, replacing any
// previous one. Existing tokens stay valid.
func (s *AuthService) SetPassphrase(ctx context.Context, passphrase string) error {
	if len(passphrase) < 8 {
		return fmt.Errorf("%w: passphrase must be at least 8 characters", domain.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash passphrase: %w", err)
	}
	return s.store.SetSetting(ctx, passphraseKey, string(hash))
}

// CreateToken verifies the passphrase and mints a new API token. The
// plaintext appears once in the response and only its SHA-256 hash persists.
func (s *AuthService) CreateToken(ctx context.Context, req token.CreateRequest) (*token.CreateResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	if err := s.verifyPassphrase(ctx, req.Passphrase); err != nil {
		return nil, err
	}

	plain, err := mintPlainToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	t := &token.APIToken{
		Name:        req.Name,
		TokenPrefix: plain[:12], // "pmk_" plus the first 8 hex chars
		KeyHash:     fingerprint(plain),
	}
	if req.ExpiresIn > 0 {
		t.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}
	if err := s.store.CreateToken(ctx, t); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	return &token.CreateResponse{Token: *t, PlainToken: plain}, nil
}

// ValidateToken resolves a presented token to its stored record. Unknown and
// expired tokens produce the same error; callers get no oracle for which it
// was.
func (s *AuthService) ValidateToken(ctx context.Context, plain string) (*token.APIToken, error) {
	t, err := s.store.GetTokenByHash(ctx, fingerprint(plain))
	if err != nil || t.Expired(time.Now()) {
		return nil, errInvalidToken
	}
	return t, nil
}

// ListTokens returns all stored tokens, hashes omitted by serialization.
func (s *AuthService) ListTokens(ctx context.Context) ([]token.APIToken, error) {
	return s.store.ListTokens(ctx)
}

// RevokeToken deletes a token by ID. Takes effect on the next request.
func (s *AuthService) RevokeToken(ctx context.Context, id string) error {
	return s.store.DeleteToken(ctx, id)
}

// verifyPassphrase compares the candidate against the stored bcrypt hash.
func (s *AuthService) verifyPassphrase(ctx context.Context, candidate string) error {
	hash, err := s.store.GetSetting(ctx, passphraseKey)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return errors.New("no passphrase configured; run the admin CLI first")
	case err != nil:
		return fmt.Errorf("load passphrase: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) != nil {
		return errors.New("invalid passphrase")
	}
	return nil
}

// fingerprint is the at-rest form of a token; only hashes touch the database.
func fingerprint(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// mintPlainToken draws fresh entropy and dresses it in the public prefix.
func mintPlainToken() (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return token.Prefix + hex.EncodeToString(buf), nil
}
