package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/recipebox/apiserver/internal/services"
)

// LabelHandler serves one label kind. Labels are created through recipe
// writes only, so the collection has no POST.
type LabelHandler struct {
	labels *services.LabelService
}

func NewLabelHandler(labels *services.LabelService) *LabelHandler {
	return &LabelHandler{labels: labels}
}

// LabelRouter registers tag or ingredient routes on the given router.
func LabelRouter(r chi.Router, labels *services.LabelService) {
	handler := NewLabelHandler(labels)

	r.Get("/", handler.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Patch("/", handler.Update)
		r.Delete("/", handler.Delete)
	})
}

func (h *LabelHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}
	assignedOnly, err := parseAssignedOnly(r.URL.Query().Get("assigned_only"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	labels, err := h.labels.List(r.Context(), scope, assignedOnly)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentLabels(labels))
}

func (h *LabelHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	label, err := h.labels.Get(r.Context(), scope, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentLabel(label))
}

func (h *LabelHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var in services.LabelInput
	if err := decodeBody(r, &in); err != nil {
		handleServiceError(w, r, err)
		return
	}

	label, err := h.labels.Update(r.Context(), scope, id, in, r.Method == http.MethodPatch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presentLabel(label))
}

func (h *LabelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}
	id, err := parseID(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.labels.Delete(r.Context(), scope, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseAssignedOnly reads assigned_only as an integer flag; any non-zero
// value enables it.
func parseAssignedOnly(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return false, services.NewValidationError("assigned_only", "A valid integer is required.")
	}
	return n != 0, nil
}
