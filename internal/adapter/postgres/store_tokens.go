package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/packetmill/packetmill/internal/domain/token"
)

// --- API tokens ---

func (s *Store) CreateToken(ctx context.Context, t *token.APIToken) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO api_tokens (name, token_prefix, key_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		t.Name, t.TokenPrefix, t.KeyHash, nullTime(t.ExpiresAt))
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *Store) GetTokenByHash(ctx context.Context, keyHash string) (*token.APIToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, token_prefix, key_hash, expires_at, created_at
		FROM api_tokens WHERE key_hash = $1`, keyHash)

	t, err := scanToken(row)
	if err != nil {
		return nil, notFoundWrap(err, "get token")
	}
	return &t, nil
}

func (s *Store) ListTokens(ctx context.Context) ([]token.APIToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, token_prefix, key_hash, expires_at, created_at
		FROM api_tokens ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []token.APIToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *Store) DeleteToken(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_tokens WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete token %s", id)
}

func scanToken(row scannable) (token.APIToken, error) {
	var t token.APIToken
	var expiresAt sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.TokenPrefix, &t.KeyHash, &expiresAt, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if expiresAt.Valid {
		t.ExpiresAt = expiresAt.Time
	}
	return t, nil
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		return "", notFoundWrap(err, "get setting %s", key)
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
