package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/recipebox/apiserver/internal/metrics"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
)

const maxLabelName = 255

// resolvedLabel pairs a label with whether resolveLabels had to create it.
type resolvedLabel struct {
	Label   types.Label
	Created bool
}

// cleanNames trims the names in set, drops repeats while keeping first-seen
// order, and records a message under field for blank or oversized names.
func cleanNames(verr *ValidationError, field string, set types.NameSet) []string {
	if !set.Present {
		return nil
	}
	seen := make(map[string]struct{}, len(set.Names))
	names := make([]string, 0, len(set.Names))
	for _, raw := range set.Names {
		name := strings.TrimSpace(raw)
		if name == "" {
			verr.Add(field, "Tag and ingredient names may not be blank.")
			continue
		}
		if utf8.RuneCountInString(name) > maxLabelName {
			verr.Add(field, fmt.Sprintf("Ensure names have no more than %d characters.", maxLabelName))
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// resolveLabels finds or creates one label per name, scoped to the owner.
// Names must already be cleaned. The result follows the order of names.
func resolveLabels(ctx context.Context, repo LabelRepository, scope types.Scope, names []string) ([]resolvedLabel, error) {
	resolved := make([]resolvedLabel, 0, len(names))
	for _, name := range names {
		label, err := repo.FindByName(ctx, scope, name)
		if err == nil {
			resolved = append(resolved, resolvedLabel{Label: label})
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("find %q: %w", name, err)
		}
		label, err = repo.Create(ctx, scope, name)
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", name, err)
		}
		resolved = append(resolved, resolvedLabel{Label: label, Created: true})
	}
	return resolved, nil
}

// attachLabels resolves names and makes them the recipe's full set of
// labels of that kind.
func attachLabels(ctx context.Context, repos Repositories, scope types.Scope, recipeID int, kind types.LabelKind, names []string) error {
	resolved, err := resolveLabels(ctx, repos.Labels(kind), scope, names)
	if err != nil {
		return err
	}
	ids := make([]int, 0, len(resolved))
	created := 0
	for _, r := range resolved {
		ids = append(ids, r.Label.ID)
		if r.Created {
			created++
		}
	}
	if err := repos.Recipes.ReplaceLabels(ctx, scope, recipeID, kind, ids); err != nil {
		return err
	}
	metrics.LabelsCreatedTotal.WithLabelValues(string(kind)).Add(float64(created))
	return nil
}
