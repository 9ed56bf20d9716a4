package services

import (
	"context"

	"github.com/recipebox/apiserver/types"
)

// LabelInput carries tag or ingredient changes.
type LabelInput struct {
	Name *string `json:"name" validate:"omitempty,max=255"`
}

// LabelService exposes the read and edit operations on one label kind.
// Labels are only ever created through recipe writes.
type LabelService struct {
	kind  types.LabelKind
	repos Repositories
}

func NewLabelService(kind types.LabelKind, repos Repositories) *LabelService {
	return &LabelService{kind: kind, repos: repos}
}

func (s *LabelService) Kind() types.LabelKind {
	return s.kind
}

func (s *LabelService) List(ctx context.Context, scope types.Scope, assignedOnly bool) ([]types.Label, error) {
	return s.repos.Labels(s.kind).List(ctx, scope, assignedOnly)
}

func (s *LabelService) Get(ctx context.Context, scope types.Scope, id int) (types.Label, error) {
	return s.repos.Labels(s.kind).Get(ctx, scope, id)
}

// Update renames a label. Without partial the name is required.
func (s *LabelService) Update(ctx context.Context, scope types.Scope, id int, in LabelInput, partial bool) (types.Label, error) {
	verr := &ValidationError{}
	requireText(verr, "name", in.Name, !partial)
	if verr.Empty() {
		verr.Merge(validateStruct(in))
	}
	if err := verr.Err(); err != nil {
		return types.Label{}, err
	}

	repo := s.repos.Labels(s.kind)
	label, err := repo.Get(ctx, scope, id)
	if err != nil {
		return types.Label{}, err
	}
	if in.Name == nil {
		return label, nil
	}
	label.Name = *in.Name
	return repo.Update(ctx, scope, label)
}

func (s *LabelService) Delete(ctx context.Context, scope types.Scope, id int) error {
	return s.repos.Labels(s.kind).Delete(ctx, scope, id)
}
