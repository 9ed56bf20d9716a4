package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recipebox/apiserver/internal/dbx"
	"github.com/recipebox/apiserver/types"
)

// TokenRepository handles persistence for bearer tokens.
type TokenRepository struct {
	db dbx.DBTX
}

func NewTokenRepository(db dbx.DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

// GetOrCreate stores key for the user unless the user already has a token,
// in which case the existing token is returned and key is discarded.
func (r *TokenRepository) GetOrCreate(ctx context.Context, userID int, key string) (types.Token, error) {
	const query = `
		INSERT INTO auth_tokens (key, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING key, user_id, created_at`
	var token types.Token
	if err := r.db.QueryRowContext(ctx, query, key, userID).Scan(
		&token.Key,
		&token.UserID,
		&token.CreatedAt,
	); err != nil {
		return types.Token{}, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *TokenRepository) GetByKey(ctx context.Context, key string) (types.Token, error) {
	const query = `SELECT key, user_id, created_at FROM auth_tokens WHERE key = $1`
	var token types.Token
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&token.Key,
		&token.UserID,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Token{}, ErrNotFound
		}
		return types.Token{}, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *TokenRepository) GetByUser(ctx context.Context, userID int) (types.Token, error) {
	const query = `SELECT key, user_id, created_at FROM auth_tokens WHERE user_id = $1`
	var token types.Token
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&token.Key,
		&token.UserID,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Token{}, ErrNotFound
		}
		return types.Token{}, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}
