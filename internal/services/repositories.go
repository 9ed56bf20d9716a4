package services

import (
	"context"

	"github.com/recipebox/apiserver/types"
)

// RecipeRepository defines persistence operations for recipes. Every call
// is restricted to the scope's owner.
type RecipeRepository interface {
	List(ctx context.Context, scope types.Scope, filter types.RecipeFilter) ([]types.Recipe, error)
	Get(ctx context.Context, scope types.Scope, id int) (types.Recipe, error)
	Create(ctx context.Context, scope types.Scope, recipe types.Recipe) (types.Recipe, error)
	Update(ctx context.Context, scope types.Scope, recipe types.Recipe) (types.Recipe, error)
	Delete(ctx context.Context, scope types.Scope, id int) error
	ReplaceLabels(ctx context.Context, scope types.Scope, recipeID int, kind types.LabelKind, ids []int) error
}

// LabelRepository defines persistence operations for one label kind.
type LabelRepository interface {
	List(ctx context.Context, scope types.Scope, assignedOnly bool) ([]types.Label, error)
	Get(ctx context.Context, scope types.Scope, id int) (types.Label, error)
	FindByName(ctx context.Context, scope types.Scope, name string) (types.Label, error)
	Create(ctx context.Context, scope types.Scope, name string) (types.Label, error)
	Update(ctx context.Context, scope types.Scope, label types.Label) (types.Label, error)
	Delete(ctx context.Context, scope types.Scope, id int) error
}

// Repositories groups the repositories a recipe write touches.
type Repositories struct {
	Recipes     RecipeRepository
	Tags        LabelRepository
	Ingredients LabelRepository
}

// Labels returns the repository for kind.
func (r Repositories) Labels(kind types.LabelKind) LabelRepository {
	if kind == types.KindIngredient {
		return r.Ingredients
	}
	return r.Tags
}

// UnitOfWork runs fn against repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
