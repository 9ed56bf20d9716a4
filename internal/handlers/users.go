package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/types"
)

// UserHandler serves account creation, token issuance and the caller's
// profile.
type UserHandler struct {
	users  *services.UserService
	tokens *services.TokenService
}

func NewUserHandler(users *services.UserService, tokens *services.TokenService) *UserHandler {
	return &UserHandler{users: users, tokens: tokens}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, users *services.UserService, tokens *services.TokenService) {
	handler := NewUserHandler(users, tokens)

	r.Post("/create", handler.Create)
	r.Post("/token", handler.Token)
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(tokens))
		r.Get("/profile", handler.Profile)
		r.Put("/profile", handler.UpdateProfile)
		r.Patch("/profile", handler.UpdateProfile)
	})
}

// ProfileResponse is the public view of an account.
type ProfileResponse struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// TokenRequest is the body of POST /users/token.
type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries an issued bearer key.
type TokenResponse struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
}

func presentProfile(user types.User) ProfileResponse {
	return ProfileResponse{Email: user.Email, Username: user.Username}
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.NewUser
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, presentProfile(user))
}

func (h *UserHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	token, err := h.tokens.Issue(r.Context(), user)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token.Key, UserID: user.ID, Email: user.Email})
}

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}
	writeJSON(w, http.StatusOK, presentProfile(user))
}

// UpdateProfile handles PUT (all fields) and PATCH (any subset).
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}

	var req services.ProfileInput
	if err := decodeBody(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user.ID, req, r.Method == http.MethodPatch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentProfile(updated))
}
