package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/recipebox/apiserver/internal/metrics"
	"github.com/recipebox/apiserver/internal/storage"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MaxImageBytes caps the size of an uploaded recipe image.
const MaxImageBytes = 10 << 20

var maxPrice = decimal.NewFromInt(1000)

// ImageStore is the blob store holding recipe images.
type ImageStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher receives recipe events after the write has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event types.RecipeEvent) error
}

// RecipeInput carries recipe fields from a create or update request. Nil
// scalars are absent from the payload; the name sets track presence
// themselves.
type RecipeInput struct {
	Title           *string          `json:"title" validate:"omitempty,max=255"`
	Description     *string          `json:"description" validate:"-"`
	MakeTimeMinutes *int             `json:"make_time_minutes" validate:"omitempty,min=0"`
	Price           *decimal.Decimal `json:"price" validate:"-"`
	Link            *string          `json:"link" validate:"omitempty,url,max=255"`
	Tags            types.NameSet    `json:"tag" validate:"-"`
	Ingredients     types.NameSet    `json:"ingredients" validate:"-"`
}

// RecipeService orchestrates recipe reads and writes. Writes that touch
// associations run inside a single unit of work.
type RecipeService struct {
	repos  Repositories
	uow    UnitOfWork
	images ImageStore
	events EventPublisher
	log    zerolog.Logger
	now    func() time.Time
}

func NewRecipeService(repos Repositories, uow UnitOfWork, images ImageStore, events EventPublisher, log zerolog.Logger) *RecipeService {
	return &RecipeService{
		repos:  repos,
		uow:    uow,
		images: images,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

func (s *RecipeService) List(ctx context.Context, scope types.Scope, filter types.RecipeFilter) ([]types.Recipe, error) {
	return s.repos.Recipes.List(ctx, scope, filter)
}

func (s *RecipeService) Get(ctx context.Context, scope types.Scope, id int) (types.Recipe, error) {
	return s.repos.Recipes.Get(ctx, scope, id)
}

// Create stores a recipe for the scope's owner and attaches the named tags
// and ingredients, creating any the owner does not have yet.
func (s *RecipeService) Create(ctx context.Context, scope types.Scope, in RecipeInput) (types.Recipe, error) {
	tags, ingredients, err := checkRecipeInput(&in, false)
	if err != nil {
		return types.Recipe{}, err
	}

	recipe := types.Recipe{}
	applyRecipeInput(&recipe, in)

	var created types.Recipe
	err = s.uow.Do(ctx, func(ctx context.Context, repos Repositories) error {
		stored, err := repos.Recipes.Create(ctx, scope, recipe)
		if err != nil {
			return err
		}
		if in.Tags.Present {
			if err := attachLabels(ctx, repos, scope, stored.ID, types.KindTag, tags); err != nil {
				return err
			}
		}
		if in.Ingredients.Present {
			if err := attachLabels(ctx, repos, scope, stored.ID, types.KindIngredient, ingredients); err != nil {
				return err
			}
		}
		created, err = repos.Recipes.Get(ctx, scope, stored.ID)
		return err
	})
	if err != nil {
		return types.Recipe{}, err
	}

	metrics.RecipesCreatedTotal.Inc()
	s.publish(ctx, types.EventRecipeCreated, created)
	return created, nil
}

// Update changes a recipe. Scalars present in the input overwrite the
// stored values. A present name set replaces that kind of association
// outright, so an empty set clears it; an absent set leaves it alone.
// Without partial, title, make_time_minutes and price are required.
func (s *RecipeService) Update(ctx context.Context, scope types.Scope, id int, in RecipeInput, partial bool) (types.Recipe, error) {
	tags, ingredients, err := checkRecipeInput(&in, partial)
	if err != nil {
		return types.Recipe{}, err
	}

	var updated types.Recipe
	err = s.uow.Do(ctx, func(ctx context.Context, repos Repositories) error {
		current, err := repos.Recipes.Get(ctx, scope, id)
		if err != nil {
			return err
		}
		applyRecipeInput(&current, in)
		if _, err := repos.Recipes.Update(ctx, scope, current); err != nil {
			return err
		}
		if in.Tags.Present {
			if err := attachLabels(ctx, repos, scope, id, types.KindTag, tags); err != nil {
				return err
			}
		}
		if in.Ingredients.Present {
			if err := attachLabels(ctx, repos, scope, id, types.KindIngredient, ingredients); err != nil {
				return err
			}
		}
		updated, err = repos.Recipes.Get(ctx, scope, id)
		return err
	})
	if err != nil {
		return types.Recipe{}, err
	}

	s.publish(ctx, types.EventRecipeUpdated, updated)
	return updated, nil
}

// Delete removes the recipe and then its stored image.
func (s *RecipeService) Delete(ctx context.Context, scope types.Scope, id int) error {
	recipe, err := s.repos.Recipes.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	if err := s.repos.Recipes.Delete(ctx, scope, id); err != nil {
		return err
	}
	s.removeBlob(ctx, recipe.Image)
	s.publish(ctx, types.EventRecipeDeleted, recipe)
	return nil
}

// UploadImage validates r as an image, stores it and points the recipe at
// it. A rejected upload leaves the previous image in place.
func (s *RecipeService) UploadImage(ctx context.Context, scope types.Scope, id int, r io.Reader) (types.Recipe, error) {
	if _, err := s.repos.Recipes.Get(ctx, scope, id); err != nil {
		return types.Recipe{}, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return types.Recipe{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImageBytes {
		return types.Recipe{}, NewValidationError("image", fmt.Sprintf("Ensure the image is no larger than %d bytes.", MaxImageBytes))
	}
	mtype, err := sniffImage(data)
	if err != nil {
		return types.Recipe{}, err
	}

	key := imageKey(mtype.Extension())
	if err := s.images.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mtype.String()); err != nil {
		return types.Recipe{}, fmt.Errorf("store image: %w", err)
	}

	var previous string
	var updated types.Recipe
	err = s.uow.Do(ctx, func(ctx context.Context, repos Repositories) error {
		current, err := repos.Recipes.Get(ctx, scope, id)
		if err != nil {
			return err
		}
		previous = current.Image
		current.Image = key
		if _, err := repos.Recipes.Update(ctx, scope, current); err != nil {
			return err
		}
		updated, err = repos.Recipes.Get(ctx, scope, id)
		return err
	})
	if err != nil {
		s.removeBlob(ctx, key)
		return types.Recipe{}, err
	}

	if previous != key {
		s.removeBlob(ctx, previous)
	}
	metrics.ImagesUploadedTotal.Inc()
	s.publish(ctx, types.EventRecipeImageUploaded, updated)
	return updated, nil
}

// OpenImage streams the recipe's stored image together with its content
// type. A recipe without an image reports store.ErrNotFound.
func (s *RecipeService) OpenImage(ctx context.Context, scope types.Scope, id int) (io.ReadCloser, string, error) {
	recipe, err := s.repos.Recipes.Get(ctx, scope, id)
	if err != nil {
		return nil, "", err
	}
	if recipe.Image == "" {
		return nil, "", store.ErrNotFound
	}
	rc, err := s.images.Get(ctx, recipe.Image)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", store.ErrNotFound
		}
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	contentType := mime.TypeByExtension(path.Ext(recipe.Image))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return rc, contentType, nil
}

func (s *RecipeService) removeBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to remove recipe image")
	}
}

func (s *RecipeService) publish(ctx context.Context, eventType string, recipe types.Recipe) {
	if s.events == nil {
		return
	}
	event := types.RecipeEvent{
		Type:       eventType,
		RecipeID:   recipe.ID,
		OwnerID:    recipe.UserID,
		Title:      recipe.Title,
		Image:      recipe.Image,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Int("recipe_id", recipe.ID).Msg("failed to publish recipe event")
	}
}

// checkRecipeInput validates in, trimming text fields in place, and returns
// the cleaned tag and ingredient names.
func checkRecipeInput(in *RecipeInput, partial bool) ([]string, []string, error) {
	verr := &ValidationError{}

	requireText(verr, "title", in.Title, !partial)
	if in.MakeTimeMinutes == nil && !partial {
		verr.Add("make_time_minutes", msgRequired)
	}
	if in.Price == nil && !partial {
		verr.Add("price", msgRequired)
	}
	if in.Price != nil {
		checkPrice(verr, *in.Price)
	}
	if in.Description != nil {
		*in.Description = strings.TrimSpace(*in.Description)
	}
	if in.Link != nil {
		*in.Link = strings.TrimSpace(*in.Link)
	}
	verr.Merge(validateStruct(in))

	tags := cleanNames(verr, "tag", in.Tags)
	ingredients := cleanNames(verr, "ingredients", in.Ingredients)

	if err := verr.Err(); err != nil {
		return nil, nil, err
	}
	return tags, ingredients, nil
}

// checkPrice enforces the NUMERIC(5,2) column: at most two decimal places
// and five digits in total.
func checkPrice(verr *ValidationError, price decimal.Decimal) {
	if !price.Round(2).Equal(price) {
		verr.Add("price", "Ensure that there are no more than 2 decimal places.")
		return
	}
	if price.Abs().GreaterThanOrEqual(maxPrice) {
		verr.Add("price", "Ensure that there are no more than 5 digits in total.")
	}
}

func applyRecipeInput(recipe *types.Recipe, in RecipeInput) {
	if in.Title != nil {
		recipe.Title = *in.Title
		recipe.Slug = slug.Make(*in.Title)
	}
	if in.Description != nil {
		recipe.Description = *in.Description
	}
	if in.MakeTimeMinutes != nil {
		recipe.MakeTimeMinutes = *in.MakeTimeMinutes
	}
	if in.Price != nil {
		recipe.Price = *in.Price
	}
	if in.Link != nil {
		recipe.Link = *in.Link
	}
}

// sniffImage accepts data only when its content is an image format the
// server can decode.
func sniffImage(data []byte) (*mimetype.MIME, error) {
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, ErrInvalidImage
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, ErrInvalidImage
	}
	return mtype, nil
}

func imageKey(ext string) string {
	return "uploads/recipe/" + uuid.NewString() + ext
}
