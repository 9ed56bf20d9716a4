package types

import "time"

// Recipe event types published after a write commits.
const (
	EventRecipeCreated       = "recipe.created"
	EventRecipeUpdated       = "recipe.updated"
	EventRecipeDeleted       = "recipe.deleted"
	EventRecipeImageUploaded = "recipe.image_uploaded"
)

// RecipeEvent is the message body published for recipe writes.
type RecipeEvent struct {
	Type       string    `json:"type"`
	RecipeID   int       `json:"recipe_id"`
	OwnerID    int       `json:"owner_id"`
	Title      string    `json:"title,omitempty"`
	Image      string    `json:"image,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
