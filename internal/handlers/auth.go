package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/recipebox/apiserver/types"
)

// TokenResolver maps a bearer key to its user.
type TokenResolver interface {
	Resolve(ctx context.Context, key string) (types.User, error)
}

// RequireAuth rejects requests without a valid token and stores the
// resolved user in the request context.
func RequireAuth(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := bearerToken(r)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			user, err := tokens.Resolve(r.Context(), key)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	writeError(w, http.StatusUnauthorized, message)
}

// bearerToken extracts the key from "Bearer <key>" or "Token <key>".
func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("authentication credentials were not provided")
	}
	scheme, key, ok := strings.Cut(auth, " ")
	if !ok || !(strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "Token")) {
		return "", errors.New("invalid authorization header")
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", errors.New("invalid authorization header")
	}
	return key, nil
}
