package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/recipebox/apiserver/internal/dbx"
	"github.com/recipebox/apiserver/types"
)

// labelTable names the storage for one label kind. Values come from the
// fixed table below, never from input, so they are safe to format into SQL.
type labelTable struct {
	table  string
	join   string
	column string
}

var labelTables = map[types.LabelKind]labelTable{
	types.KindTag:        {table: "tags", join: "recipe_tags", column: "tag_id"},
	types.KindIngredient: {table: "ingredients", join: "recipe_ingredients", column: "ingredient_id"},
}

func tableFor(kind types.LabelKind) labelTable {
	t, ok := labelTables[kind]
	if !ok {
		panic(fmt.Sprintf("store: unknown label kind %q", kind))
	}
	return t
}

// LabelRepository handles persistence for tags or ingredients. Every method
// is restricted to rows owned by the scope's user.
type LabelRepository struct {
	db   dbx.DBTX
	kind types.LabelKind
	t    labelTable
}

func NewLabelRepository(db dbx.DBTX, kind types.LabelKind) *LabelRepository {
	return &LabelRepository{db: db, kind: kind, t: tableFor(kind)}
}

func NewTagRepository(db dbx.DBTX) *LabelRepository {
	return NewLabelRepository(db, types.KindTag)
}

func NewIngredientRepository(db dbx.DBTX) *LabelRepository {
	return NewLabelRepository(db, types.KindIngredient)
}

// Kind reports which label table the repository reads.
func (r *LabelRepository) Kind() types.LabelKind {
	return r.kind
}

// List returns the owner's labels ordered by name descending. With
// assignedOnly set, only labels attached to at least one of the owner's
// recipes are returned, each once.
func (r *LabelRepository) List(ctx context.Context, scope types.Scope, assignedOnly bool) ([]types.Label, error) {
	query := fmt.Sprintf(`SELECT l.id, l.user_id, l.name FROM %s l WHERE l.user_id = $1`, r.t.table)
	if assignedOnly {
		query += fmt.Sprintf(`
			AND EXISTS (
				SELECT 1 FROM %s j
				JOIN recipes rc ON rc.id = j.recipe_id
				WHERE j.%s = l.id AND rc.user_id = $1
			)`, r.t.join, r.t.column)
	}
	query += ` ORDER BY l.name DESC, l.id DESC`

	rows, err := r.db.QueryContext(ctx, query, scope.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	return scanLabels(rows)
}

func (r *LabelRepository) Get(ctx context.Context, scope types.Scope, id int) (types.Label, error) {
	query := fmt.Sprintf(`SELECT id, user_id, name FROM %s WHERE id = $1 AND user_id = $2`, r.t.table)
	var label types.Label
	err := r.db.QueryRowContext(ctx, query, id, scope.OwnerID).Scan(&label.ID, &label.UserID, &label.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Label{}, ErrNotFound
		}
		return types.Label{}, fmt.Errorf("db error: %w", err)
	}
	return label, nil
}

// FindByName returns the owner's label with exactly this name. When several
// rows share the name the oldest one wins.
func (r *LabelRepository) FindByName(ctx context.Context, scope types.Scope, name string) (types.Label, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, name FROM %s
		WHERE user_id = $1 AND name = $2
		ORDER BY id ASC
		LIMIT 1`, r.t.table)
	var label types.Label
	err := r.db.QueryRowContext(ctx, query, scope.OwnerID, name).Scan(&label.ID, &label.UserID, &label.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Label{}, ErrNotFound
		}
		return types.Label{}, fmt.Errorf("db error: %w", err)
	}
	return label, nil
}

func (r *LabelRepository) Create(ctx context.Context, scope types.Scope, name string) (types.Label, error) {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, name) VALUES ($1, $2) RETURNING id`, r.t.table)
	label := types.Label{UserID: scope.OwnerID, Name: name}
	if err := r.db.QueryRowContext(ctx, query, scope.OwnerID, name).Scan(&label.ID); err != nil {
		return types.Label{}, fmt.Errorf("db error: %w", err)
	}
	return label, nil
}

func (r *LabelRepository) Update(ctx context.Context, scope types.Scope, label types.Label) (types.Label, error) {
	query := fmt.Sprintf(`UPDATE %s SET name = $1 WHERE id = $2 AND user_id = $3`, r.t.table)
	result, err := r.db.ExecContext(ctx, query, label.Name, label.ID, scope.OwnerID)
	if err != nil {
		return types.Label{}, fmt.Errorf("db error: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Label{}, err
	}
	if affected == 0 {
		return types.Label{}, ErrNotFound
	}
	label.UserID = scope.OwnerID
	return label, nil
}

// Delete removes the label. Its recipe associations go with it; the
// recipes themselves are untouched.
func (r *LabelRepository) Delete(ctx context.Context, scope types.Scope, id int) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND user_id = $2`, r.t.table)
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

func scanLabels(rows *sql.Rows) ([]types.Label, error) {
	labels := make([]types.Label, 0)
	for rows.Next() {
		var label types.Label
		if err := rows.Scan(&label.ID, &label.UserID, &label.Name); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return labels, nil
}
