package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/recipebox/apiserver/internal/logger"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/types"
)

const (
	formFieldImage     = "image"
	maxMultipartMemory = 32 << 20
)

// RecipeHandler provides HTTP handlers for recipes.
type RecipeHandler struct {
	recipes   *services.RecipeService
	presenter Presenter
}

func NewRecipeHandler(recipes *services.RecipeService, presenter Presenter) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, presenter: presenter}
}

// RecipeRouter registers recipe routes on the given router. Callers are
// expected to have applied RequireAuth.
func RecipeRouter(r chi.Router, recipes *services.RecipeService, presenter Presenter) {
	handler := NewRecipeHandler(recipes, presenter)

	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Patch("/", handler.Update)
		r.Delete("/", handler.Delete)
		r.Post("/upload-image", handler.UploadImage)
		r.Get("/image", handler.Image)
	})
}

func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}

	query := r.URL.Query()
	tagIDs, err := parseIDList("tags", query.Get("tags"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	ingredientIDs, err := parseIDList("ingredients", query.Get("ingredients"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	recipes, err := h.recipes.List(r.Context(), scope, types.RecipeFilter{
		TagIDs:        tagIDs,
		IngredientIDs: ingredientIDs,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter.Recipes(recipes))
}

func (h *RecipeHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	recipe, err := h.recipes.Get(r.Context(), scope, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter.Recipe(OpRetrieve, recipe))
}

func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(r)
	if !ok {
		writeUnauthorized(w, "authentication credentials were not provided")
		return
	}

	var in services.RecipeInput
	if err := decodeBody(r, &in); err != nil {
		handleServiceError(w, r, err)
		return
	}

	recipe, err := h.recipes.Create(r.Context(), scope, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.presenter.Recipe(OpCreate, recipe))
}

// Update handles PUT (core fields required) and PATCH (any subset).
func (h *RecipeHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var in services.RecipeInput
	if err := decodeBody(r, &in); err != nil {
		handleServiceError(w, r, err)
		return
	}

	recipe, err := h.recipes.Update(r.Context(), scope, id, in, r.Method == http.MethodPatch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter.Recipe(OpUpdate, recipe))
}

func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.recipes.Delete(r.Context(), scope, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage stores the multipart "image" field as the recipe image.
func (h *RecipeHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxImageBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handleServiceError(w, r, services.NewValidationError(formFieldImage, "The submitted file is too large."))
			return
		}
		handleServiceError(w, r, services.NewValidationError(formFieldImage, "The submitted data was not a file."))
		return
	}
	file, _, err := r.FormFile(formFieldImage)
	if err != nil {
		handleServiceError(w, r, services.NewValidationError(formFieldImage, "No file was submitted."))
		return
	}
	defer file.Close()

	recipe, err := h.recipes.UploadImage(r.Context(), scope, id, file)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter.Recipe(OpUploadImage, recipe))
}

// Image streams the stored recipe image.
func (h *RecipeHandler) Image(w http.ResponseWriter, r *http.Request) {
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

	rc, contentType, err := h.recipes.OpenImage(r.Context(), scope, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log := logger.Get()
		log.Warn().Err(err).Int("recipe_id", id).Msg("failed to stream recipe image")
	}
}
