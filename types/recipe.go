package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recipe represents a cooking recipe owned by a single user.
type Recipe struct {
	// ID is the unique identifier of the recipe. IDs grow monotonically,
	// so descending ID order is newest first.
	ID int `json:"id" db:"id"`

	// UserID identifies the owner. It is fixed at creation time.
	UserID int `json:"-" db:"user_id"`

	// Slug is a URL-safe form of the title.
	Slug string `json:"slug" db:"slug"`

	// Title is the human-readable name of the recipe.
	Title string `json:"title" db:"title"`

	// Description is the free-form preparation text. May be empty.
	Description string `json:"description" db:"description"`

	// MakeTimeMinutes is the total preparation time in minutes.
	MakeTimeMinutes int `json:"make_time_minutes" db:"make_time_minutes"`

	// Price is a fixed-point amount with at most 5 digits, 2 of them
	// after the decimal point.
	Price decimal.Decimal `json:"price" db:"price"`

	// Link is an optional URL to the original recipe.
	Link string `json:"link" db:"link"`

	// Image is the object storage key of the recipe image, empty when
	// no image has been uploaded.
	Image string `json:"image" db:"image"`

	// Tags are the labels attached to the recipe. Order is not significant.
	Tags []Tag `json:"tag" db:"-"`

	// Ingredients are the ingredients attached to the recipe.
	// Order is not significant.
	Ingredients []Ingredient `json:"ingredients" db:"-"`

	// CreatedAt is the timestamp at which the recipe was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the recipe.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LabelKind distinguishes the two per-user name lists attached to recipes.
type LabelKind string

// Supported label kinds.
const (
	KindTag        LabelKind = "tag"
	KindIngredient LabelKind = "ingredient"
)

// Label is a named row owned by a user and shared by reference between
// that user's recipes. Tags and ingredients have the same shape.
type Label struct {
	// ID is the unique identifier of the label.
	ID int `json:"id" db:"id"`

	// UserID identifies the owner of the label.
	UserID int `json:"-" db:"user_id"`

	// Name is the display name. Names are not unique at the storage level.
	Name string `json:"name" db:"name"`
}

// Tag is a free-form label used to group recipes.
type Tag = Label

// Ingredient is an ingredient name used by recipes.
type Ingredient = Label

// Scope restricts a repository call to rows owned by one user.
// Every recipe, tag and ingredient query takes a Scope.
type Scope struct {
	OwnerID int
}

// OwnedBy returns the scope for the given user.
func OwnedBy(userID int) Scope {
	return Scope{OwnerID: userID}
}

// RecipeFilter narrows a recipe listing. A recipe matches a non-empty ID
// set when at least one of its labels is in the set.
type RecipeFilter struct {
	TagIDs        []int
	IngredientIDs []int
}
