// Package auth mints and checks the opaque bearer keys handed to clients.
//
// A key is an HS256-signed JWT whose subject is the user id. The signature
// lets the server reject forged keys before touching the database; the key
// itself stays valid until it is removed from auth_tokens.
package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidKey is returned for keys that are malformed or badly signed.
var ErrInvalidKey = errors.New("invalid token key")

// KeySigner mints and verifies token keys with a shared secret.
type KeySigner struct {
	secret []byte
	now    func() time.Time
}

func NewKeySigner(secret string) *KeySigner {
	return &KeySigner{secret: []byte(secret), now: time.Now}
}

// NewKey returns a fresh key for the user. Every call yields a distinct key.
func (s *KeySigner) NewKey(userID int) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Subject:  strconv.Itoa(userID),
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// UserID verifies the key signature and returns the user id it was minted for.
func (s *KeySigner) UserID(key string) (int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(key, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidKey
	}
	id, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || id < 1 {
		return 0, ErrInvalidKey
	}
	return id, nil
}
