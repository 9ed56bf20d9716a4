package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/recipebox/apiserver/internal/dbx"
	"github.com/recipebox/apiserver/types"
)

// RecipeRepository handles persistence for recipes and their tag and
// ingredient associations. Every method is restricted to the scope's owner.
type RecipeRepository struct {
	db dbx.DBTX
}

func NewRecipeRepository(db dbx.DBTX) *RecipeRepository {
	return &RecipeRepository{db: db}
}

const recipeColumns = `r.id, r.user_id, r.slug, r.title, r.description, r.make_time_minutes, r.price, r.link, r.image, r.created_at, r.updated_at`

func scanRecipe(row interface{ Scan(...any) error }) (types.Recipe, error) {
	var recipe types.Recipe
	err := row.Scan(
		&recipe.ID,
		&recipe.UserID,
		&recipe.Slug,
		&recipe.Title,
		&recipe.Description,
		&recipe.MakeTimeMinutes,
		&recipe.Price,
		&recipe.Link,
		&recipe.Image,
		&recipe.CreatedAt,
		&recipe.UpdatedAt,
	)
	return recipe, err
}

// List returns the owner's recipes, newest first. Each non-empty ID set in
// the filter keeps recipes that carry at least one of those labels.
// Associations are not loaded.
func (r *RecipeRepository) List(ctx context.Context, scope types.Scope, filter types.RecipeFilter) ([]types.Recipe, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + recipeColumns + ` FROM recipes r WHERE r.user_id = $1`)
	args := []any{scope.OwnerID}

	addFilter := func(kind types.LabelKind, ids []int) {
		if len(ids) == 0 {
			return
		}
		t := tableFor(kind)
		args = append(args, pq.Array(int64s(ids)))
		fmt.Fprintf(&b, ` AND EXISTS (SELECT 1 FROM %s j WHERE j.recipe_id = r.id AND j.%s = ANY($%d))`,
			t.join, t.column, len(args))
	}
	addFilter(types.KindTag, filter.TagIDs)
	addFilter(types.KindIngredient, filter.IngredientIDs)

	b.WriteString(` ORDER BY r.id DESC`)

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	recipes := make([]types.Recipe, 0)
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		recipes = append(recipes, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return recipes, nil
}

// Get returns the recipe with its tags and ingredients.
func (r *RecipeRepository) Get(ctx context.Context, scope types.Scope, id int) (types.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes r WHERE r.id = $1 AND r.user_id = $2`
	recipe, err := scanRecipe(r.db.QueryRowContext(ctx, query, id, scope.OwnerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Recipe{}, ErrNotFound
		}
		return types.Recipe{}, fmt.Errorf("db error: %w", err)
	}

	if recipe.Tags, err = r.labels(ctx, recipe.ID, types.KindTag); err != nil {
		return types.Recipe{}, err
	}
	if recipe.Ingredients, err = r.labels(ctx, recipe.ID, types.KindIngredient); err != nil {
		return types.Recipe{}, err
	}
	return recipe, nil
}

func (r *RecipeRepository) labels(ctx context.Context, recipeID int, kind types.LabelKind) ([]types.Label, error) {
	t := tableFor(kind)
	query := fmt.Sprintf(`
		SELECT l.id, l.user_id, l.name
		FROM %s l
		JOIN %s j ON j.%s = l.id
		WHERE j.recipe_id = $1
		ORDER BY l.id`, t.table, t.join, t.column)
	rows, err := r.db.QueryContext(ctx, query, recipeID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return scanLabels(rows)
}

// Create inserts the recipe's scalar fields under the scope's owner.
// Associations are attached separately with ReplaceLabels.
func (r *RecipeRepository) Create(ctx context.Context, scope types.Scope, recipe types.Recipe) (types.Recipe, error) {
	now := time.Now().UTC()
	recipe.UserID = scope.OwnerID
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	const query = `
		INSERT INTO recipes (user_id, slug, title, description, make_time_minutes, price, link, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		recipe.UserID,
		recipe.Slug,
		recipe.Title,
		recipe.Description,
		recipe.MakeTimeMinutes,
		recipe.Price,
		recipe.Link,
		recipe.Image,
		recipe.CreatedAt,
		recipe.UpdatedAt,
	).Scan(&recipe.ID); err != nil {
		return types.Recipe{}, fmt.Errorf("db error: %w", err)
	}
	recipe.Tags = []types.Tag{}
	recipe.Ingredients = []types.Ingredient{}
	return recipe, nil
}

// Update writes the recipe's scalar fields. The owner never changes.
func (r *RecipeRepository) Update(ctx context.Context, scope types.Scope, recipe types.Recipe) (types.Recipe, error) {
	recipe.UpdatedAt = time.Now().UTC()
	recipe.UserID = scope.OwnerID

	const query = `
		UPDATE recipes
		SET slug = $1,
			title = $2,
			description = $3,
			make_time_minutes = $4,
			price = $5,
			link = $6,
			image = $7,
			updated_at = $8
		WHERE id = $9 AND user_id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		recipe.Slug,
		recipe.Title,
		recipe.Description,
		recipe.MakeTimeMinutes,
		recipe.Price,
		recipe.Link,
		recipe.Image,
		recipe.UpdatedAt,
		recipe.ID,
		scope.OwnerID,
	)
	if err != nil {
		return types.Recipe{}, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Recipe{}, err
	}
	if affected == 0 {
		return types.Recipe{}, ErrNotFound
	}
	return recipe, nil
}

func (r *RecipeRepository) Delete(ctx context.Context, scope types.Scope, id int) error {
	const query = `DELETE FROM recipes WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, scope.OwnerID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceLabels sets the recipe's labels of one kind to exactly ids.
// Labels not owned by the recipe's owner are skipped.
func (r *RecipeRepository) ReplaceLabels(ctx context.Context, scope types.Scope, recipeID int, kind types.LabelKind, ids []int) error {
	t := tableFor(kind)

	detach := fmt.Sprintf(`
		DELETE FROM %s j
		USING recipes rc
		WHERE j.recipe_id = rc.id AND rc.id = $1 AND rc.user_id = $2`, t.join)
	if _, err := r.db.ExecContext(ctx, detach, recipeID, scope.OwnerID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	attach := fmt.Sprintf(`
		INSERT INTO %s (recipe_id, %s)
		SELECT rc.id, l.id
		FROM recipes rc
		JOIN %s l ON l.user_id = rc.user_id
		WHERE rc.id = $1 AND rc.user_id = $2 AND l.id = ANY($3)
		ON CONFLICT DO NOTHING`, t.join, t.column, t.table)
	if _, err := r.db.ExecContext(ctx, attach, recipeID, scope.OwnerID, pq.Array(int64s(ids))); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func int64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
