package server

import (
	"context"
	"database/sql"

	"github.com/recipebox/apiserver/internal/dbx"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/store"
)

// sqlUnitOfWork binds the recipe repositories to one database transaction.
type sqlUnitOfWork struct {
	db *sql.DB
}

func (u sqlUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos services.Repositories) error) error {
	return dbx.WithTx(ctx, u.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, sqlRepositories(tx))
	})
}

func sqlRepositories(db dbx.DBTX) services.Repositories {
	return services.Repositories{
		Recipes:     store.NewRecipeRepository(db),
		Tags:        store.NewTagRepository(db),
		Ingredients: store.NewIngredientRepository(db),
	}
}
