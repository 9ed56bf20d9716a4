package handlers

import (
	"strings"

	"github.com/recipebox/apiserver/types"
)

// Operation selects the output shape of a recipe response.
type Operation int

const (
	OpList Operation = iota
	OpRetrieve
	OpCreate
	OpUpdate
	OpUploadImage
)

// RecipeSummary is the list shape of a recipe.
type RecipeSummary struct {
	ID              int    `json:"id"`
	Title           string `json:"title"`
	MakeTimeMinutes int    `json:"make_time_minutes"`
	Price           string `json:"price"`
	Link            string `json:"link"`
}

// RecipeDetail is the shape returned for a single recipe.
type RecipeDetail struct {
	RecipeSummary
	Description string        `json:"description"`
	Image       *string       `json:"image"`
	Tags        []LabelOutput `json:"tag"`
	Ingredients []LabelOutput `json:"ingredients"`
}

// RecipeImage is the reply to an image upload.
type RecipeImage struct {
	ID    int     `json:"id"`
	Image *string `json:"image"`
}

// LabelOutput is the shape of a tag or ingredient.
type LabelOutput struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Presenter renders recipes. Image keys are joined onto PublicBaseURL
// when it is set.
type Presenter struct {
	PublicBaseURL string
}

// Recipe renders recipe in the shape op calls for.
func (p Presenter) Recipe(op Operation, recipe types.Recipe) any {
	switch op {
	case OpList:
		return summarize(recipe)
	case OpUploadImage:
		return RecipeImage{ID: recipe.ID, Image: p.imageURL(recipe.Image)}
	default:
		return p.detail(recipe)
	}
}

// Recipes renders a listing.
func (p Presenter) Recipes(recipes []types.Recipe) []RecipeSummary {
	out := make([]RecipeSummary, 0, len(recipes))
	for _, recipe := range recipes {
		out = append(out, summarize(recipe))
	}
	return out
}

func summarize(recipe types.Recipe) RecipeSummary {
	return RecipeSummary{
		ID:              recipe.ID,
		Title:           recipe.Title,
		MakeTimeMinutes: recipe.MakeTimeMinutes,
		Price:           recipe.Price.StringFixed(2),
		Link:            recipe.Link,
	}
}

func (p Presenter) detail(recipe types.Recipe) RecipeDetail {
	return RecipeDetail{
		RecipeSummary: summarize(recipe),
		Description:   recipe.Description,
		Image:         p.imageURL(recipe.Image),
		Tags:          presentLabels(recipe.Tags),
		Ingredients:   presentLabels(recipe.Ingredients),
	}
}

func (p Presenter) imageURL(key string) *string {
	if key == "" {
		return nil
	}
	if p.PublicBaseURL == "" {
		return &key
	}
	url := strings.TrimSuffix(p.PublicBaseURL, "/") + "/" + key
	return &url
}

func presentLabel(label types.Label) LabelOutput {
	return LabelOutput{ID: label.ID, Name: label.Name}
}

func presentLabels(labels []types.Label) []LabelOutput {
	out := make([]LabelOutput, 0, len(labels))
	for _, label := range labels {
		out = append(out, presentLabel(label))
	}
	return out
}
