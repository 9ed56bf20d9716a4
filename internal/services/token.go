package services

import (
	"context"
	"errors"

	"github.com/recipebox/apiserver/internal/metrics"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
)

// TokenRepository defines persistence operations for bearer tokens.
type TokenRepository interface {
	GetOrCreate(ctx context.Context, userID int, key string) (types.Token, error)
	GetByKey(ctx context.Context, key string) (types.Token, error)
	GetByUser(ctx context.Context, userID int) (types.Token, error)
}

// KeySigner mints token keys and recovers the user id from a key.
type KeySigner interface {
	NewKey(userID int) (string, error)
	UserID(key string) (int, error)
}

// TokenService issues and resolves bearer tokens.
type TokenService struct {
	tokens TokenRepository
	users  UserRepository
	signer KeySigner
}

func NewTokenService(tokens TokenRepository, users UserRepository, signer KeySigner) *TokenService {
	return &TokenService{tokens: tokens, users: users, signer: signer}
}

// Issue returns the user's token, creating it on first use. Repeated calls
// for the same user return the same key.
func (s *TokenService) Issue(ctx context.Context, user types.User) (types.Token, error) {
	existing, err := s.tokens.GetByUser(ctx, user.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Token{}, err
	}

	key, err := s.signer.NewKey(user.ID)
	if err != nil {
		return types.Token{}, err
	}
	// A concurrent login may have stored a key first; GetOrCreate returns it.
	token, err := s.tokens.GetOrCreate(ctx, user.ID, key)
	if err != nil {
		return types.Token{}, err
	}
	if token.Key == key {
		metrics.TokensIssuedTotal.Inc()
	}
	return token, nil
}

// Resolve maps a bearer key to its active owner.
func (s *TokenService) Resolve(ctx context.Context, key string) (types.User, error) {
	userID, err := s.signer.UserID(key)
	if err != nil {
		return types.User{}, ErrUnauthenticated
	}

	token, err := s.tokens.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, err
	}
	if token.UserID != userID {
		return types.User{}, ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, err
	}
	if !user.IsActive {
		return types.User{}, ErrUnauthenticated
	}
	return user, nil
}
