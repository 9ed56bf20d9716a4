// Package memory is an in-process implementation of the repository
// interfaces. It follows the same ownership and ordering rules as the SQL
// repositories and supports rollback through Store.Do, which makes it the
// backing store for service and HTTP tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
)

type state struct {
	lastID  int
	users   map[int]types.User
	tokens  map[string]types.Token
	recipes map[int]types.Recipe
	labels  map[types.LabelKind]map[int]types.Label
	// links maps kind -> recipe id -> attached label ids.
	links map[types.LabelKind]map[int]map[int]struct{}
}

func newState() state {
	return state{
		users:   make(map[int]types.User),
		tokens:  make(map[string]types.Token),
		recipes: make(map[int]types.Recipe),
		labels: map[types.LabelKind]map[int]types.Label{
			types.KindTag:        {},
			types.KindIngredient: {},
		},
		links: map[types.LabelKind]map[int]map[int]struct{}{
			types.KindTag:        {},
			types.KindIngredient: {},
		},
	}
}

func (s state) clone() state {
	c := newState()
	c.lastID = s.lastID
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.recipes {
		c.recipes[k] = v
	}
	for kind, rows := range s.labels {
		for k, v := range rows {
			c.labels[kind][k] = v
		}
	}
	for kind, byRecipe := range s.links {
		for recipeID, ids := range byRecipe {
			set := make(map[int]struct{}, len(ids))
			for id := range ids {
				set[id] = struct{}{}
			}
			c.links[kind][recipeID] = set
		}
	}
	return c
}

// Store holds every table in memory. It is safe for concurrent use; units
// of work are serialized.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) nextID() int {
	s.st.lastID++
	return s.st.lastID
}

// Do runs fn and restores the previous contents when fn fails or panics.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos services.Repositories) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	rollback := func() {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
		if err != nil {
			rollback()
		}
	}()

	return fn(ctx, s.Repositories())
}

// Repositories returns the recipe, tag and ingredient repositories.
func (s *Store) Repositories() services.Repositories {
	return services.Repositories{
		Recipes:     &RecipeRepository{s: s},
		Tags:        &LabelRepository{s: s, kind: types.KindTag},
		Ingredients: &LabelRepository{s: s, kind: types.KindIngredient},
	}
}

func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

func (s *Store) Tokens() *TokenRepository {
	return &TokenRepository{s: s}
}

// UserRepository is the in-memory users table.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.st.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.st.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkUnique(user); err != nil {
		return types.User{}, err
	}
	user.ID = r.s.nextID()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.s.st.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.st.users[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if err := r.checkUnique(user); err != nil {
		return types.User{}, err
	}
	existing.Email = user.Email
	existing.Username = user.Username
	existing.PasswordHash = user.PasswordHash
	existing.IsActive = user.IsActive
	existing.IsVerified = user.IsVerified
	existing.UpdatedAt = time.Now().UTC()
	r.s.st.users[user.ID] = existing
	return existing, nil
}

func (r *UserRepository) checkUnique(user types.User) error {
	for id, other := range r.s.st.users {
		if id == user.ID {
			continue
		}
		if other.Email == user.Email {
			return store.ErrDuplicateEmail
		}
		if other.Username == user.Username {
			return store.ErrDuplicateUsername
		}
	}
	return nil
}

// TokenRepository is the in-memory auth_tokens table.
type TokenRepository struct {
	s *Store
}

func (r *TokenRepository) GetOrCreate(ctx context.Context, userID int, key string) (types.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, token := range r.s.st.tokens {
		if token.UserID == userID {
			return token, nil
		}
	}
	token := types.Token{Key: key, UserID: userID, CreatedAt: time.Now().UTC()}
	r.s.st.tokens[key] = token
	return token, nil
}

func (r *TokenRepository) GetByUser(ctx context.Context, userID int) (types.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, token := range r.s.st.tokens {
		if token.UserID == userID {
			return token, nil
		}
	}
	return types.Token{}, store.ErrNotFound
}

func (r *TokenRepository) GetByKey(ctx context.Context, key string) (types.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	token, ok := r.s.st.tokens[key]
	if !ok {
		return types.Token{}, store.ErrNotFound
	}
	return token, nil
}

// RecipeRepository is the in-memory recipes table with its join tables.
type RecipeRepository struct {
	s *Store
}

func (r *RecipeRepository) List(ctx context.Context, scope types.Scope, filter types.RecipeFilter) ([]types.Recipe, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	recipes := make([]types.Recipe, 0)
	for _, recipe := range r.s.st.recipes {
		if recipe.UserID != scope.OwnerID {
			continue
		}
		if !r.hasAny(types.KindTag, recipe.ID, filter.TagIDs) ||
			!r.hasAny(types.KindIngredient, recipe.ID, filter.IngredientIDs) {
			continue
		}
		recipes = append(recipes, recipe)
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].ID > recipes[j].ID })
	return recipes, nil
}

// hasAny reports whether the recipe carries one of ids. An empty id set
// matches everything.
func (r *RecipeRepository) hasAny(kind types.LabelKind, recipeID int, ids []int) bool {
	if len(ids) == 0 {
		return true
	}
	attached := r.s.st.links[kind][recipeID]
	for _, id := range ids {
		if _, ok := attached[id]; ok {
			return true
		}
	}
	return false
}

func (r *RecipeRepository) Get(ctx context.Context, scope types.Scope, id int) (types.Recipe, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	recipe, ok := r.s.st.recipes[id]
	if !ok || recipe.UserID != scope.OwnerID {
		return types.Recipe{}, store.ErrNotFound
	}
	recipe.Tags = r.attached(types.KindTag, id)
	recipe.Ingredients = r.attached(types.KindIngredient, id)
	return recipe, nil
}

func (r *RecipeRepository) attached(kind types.LabelKind, recipeID int) []types.Label {
	labels := make([]types.Label, 0)
	for id := range r.s.st.links[kind][recipeID] {
		labels = append(labels, r.s.st.labels[kind][id])
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].ID < labels[j].ID })
	return labels
}

func (r *RecipeRepository) Create(ctx context.Context, scope types.Scope, recipe types.Recipe) (types.Recipe, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	recipe.ID = r.s.nextID()
	recipe.UserID = scope.OwnerID
	recipe.CreatedAt = time.Now().UTC()
	recipe.UpdatedAt = recipe.CreatedAt
	recipe.Tags = nil
	recipe.Ingredients = nil
	r.s.st.recipes[recipe.ID] = recipe

	recipe.Tags = []types.Tag{}
	recipe.Ingredients = []types.Ingredient{}
	return recipe, nil
}

func (r *RecipeRepository) Update(ctx context.Context, scope types.Scope, recipe types.Recipe) (types.Recipe, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.st.recipes[recipe.ID]
	if !ok || existing.UserID != scope.OwnerID {
		return types.Recipe{}, store.ErrNotFound
	}
	recipe.UserID = existing.UserID
	recipe.CreatedAt = existing.CreatedAt
	recipe.UpdatedAt = time.Now().UTC()
	stored := recipe
	stored.Tags = nil
	stored.Ingredients = nil
	r.s.st.recipes[recipe.ID] = stored
	return recipe, nil
}

func (r *RecipeRepository) Delete(ctx context.Context, scope types.Scope, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.st.recipes[id]
	if !ok || existing.UserID != scope.OwnerID {
		return store.ErrNotFound
	}
	delete(r.s.st.recipes, id)
	for _, byRecipe := range r.s.st.links {
		delete(byRecipe, id)
	}
	return nil
}

func (r *RecipeRepository) ReplaceLabels(ctx context.Context, scope types.Scope, recipeID int, kind types.LabelKind, ids []int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	recipe, ok := r.s.st.recipes[recipeID]
	if !ok || recipe.UserID != scope.OwnerID {
		return nil
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		label, ok := r.s.st.labels[kind][id]
		if !ok || label.UserID != recipe.UserID {
			continue
		}
		set[id] = struct{}{}
	}
	r.s.st.links[kind][recipeID] = set
	return nil
}

// LabelRepository is the in-memory tags or ingredients table.
type LabelRepository struct {
	s    *Store
	kind types.LabelKind
}

func (r *LabelRepository) List(ctx context.Context, scope types.Scope, assignedOnly bool) ([]types.Label, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var assigned map[int]struct{}
	if assignedOnly {
		assigned = make(map[int]struct{})
		for recipeID, ids := range r.s.st.links[r.kind] {
			if recipe, ok := r.s.st.recipes[recipeID]; !ok || recipe.UserID != scope.OwnerID {
				continue
			}
			for id := range ids {
				assigned[id] = struct{}{}
			}
		}
	}

	labels := make([]types.Label, 0)
	for _, label := range r.s.st.labels[r.kind] {
		if label.UserID != scope.OwnerID {
			continue
		}
		if assignedOnly {
			if _, ok := assigned[label.ID]; !ok {
				continue
			}
		}
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if c := strings.Compare(labels[i].Name, labels[j].Name); c != 0 {
			return c > 0
		}
		return labels[i].ID > labels[j].ID
	})
	return labels, nil
}

func (r *LabelRepository) Get(ctx context.Context, scope types.Scope, id int) (types.Label, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	label, ok := r.s.st.labels[r.kind][id]
	if !ok || label.UserID != scope.OwnerID {
		return types.Label{}, store.ErrNotFound
	}
	return label, nil
}

func (r *LabelRepository) FindByName(ctx context.Context, scope types.Scope, name string) (types.Label, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var found types.Label
	for _, label := range r.s.st.labels[r.kind] {
		if label.UserID != scope.OwnerID || label.Name != name {
			continue
		}
		if found.ID == 0 || label.ID < found.ID {
			found = label
		}
	}
	if found.ID == 0 {
		return types.Label{}, store.ErrNotFound
	}
	return found, nil
}

func (r *LabelRepository) Create(ctx context.Context, scope types.Scope, name string) (types.Label, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	label := types.Label{ID: r.s.nextID(), UserID: scope.OwnerID, Name: name}
	r.s.st.labels[r.kind][label.ID] = label
	return label, nil
}

func (r *LabelRepository) Update(ctx context.Context, scope types.Scope, label types.Label) (types.Label, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.st.labels[r.kind][label.ID]
	if !ok || existing.UserID != scope.OwnerID {
		return types.Label{}, store.ErrNotFound
	}
	existing.Name = label.Name
	r.s.st.labels[r.kind][label.ID] = existing
	return existing, nil
}

func (r *LabelRepository) Delete(ctx context.Context, scope types.Scope, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.st.labels[r.kind][id]
	if !ok || existing.UserID != scope.OwnerID {
		return store.ErrNotFound
	}
	delete(r.s.st.labels[r.kind], id)
	for _, ids := range r.s.st.links[r.kind] {
		delete(ids, id)
	}
	return nil
}
