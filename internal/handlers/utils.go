package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/recipebox/apiserver/internal/logger"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is the body of every error reply. Fields is set for
// validation failures.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok && user.ID > 0
}

// scopeFromRequest returns the owner scope of the authenticated caller.
func scopeFromRequest(r *http.Request) (types.Scope, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		return types.Scope{}, false
	}
	return types.OwnedBy(user.ID), true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// handleServiceError maps service and store errors onto HTTP replies.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Fields: verr.Fields})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidImage):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "invalid request",
			Fields: map[string][]string{"image": {err.Error()}},
		})
	case errors.Is(err, services.ErrUnauthenticated):
		writeUnauthorized(w, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		log := logger.Get()
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// MethodNotAllowed replies 405 with a JSON body.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %q not allowed", r.Method))
}

// NotFound replies 404 with a JSON body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func parseID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		return 0, store.ErrNotFound
	}
	return id, nil
}

// parseIDList parses a comma-separated list of ids such as "1,2,3".
func parseIDList(field, raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, services.NewValidationError(field, fmt.Sprintf("%q is not a valid id.", part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// decodeBody reads a JSON object into the struct pointed to by dst one
// field at a time, so a bad value is reported against its JSON key.
// Keys that dst does not declare are ignored. An empty body decodes as {}.
func decodeBody(r *http.Request, dst any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	raw := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return services.NewValidationError("non_field_errors", "Invalid data. Expected a JSON object.")
		}
	}

	verr := &services.ValidationError{}
	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		value, ok := raw[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, v.Field(i).Addr().Interface()); err != nil {
			verr.Add(name, decodeMessage(err))
		}
	}
	return verr.Err()
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, types.ErrNullNameSet):
		return "This field may not be null."
	case errors.As(err, &typeErr):
		return fmt.Sprintf("Incorrect type. Expected %s.", typeErr.Type.Kind())
	default:
		return "Invalid value."
	}
}

// Healthz reports that the process is serving.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
