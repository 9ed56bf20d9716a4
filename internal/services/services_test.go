package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/recipebox/apiserver/internal/auth"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/storage"
	"github.com/recipebox/apiserver/internal/store/memory"
	"github.com/recipebox/apiserver/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type env struct {
	store       *memory.Store
	blobs       *storage.MemoryBackend
	events      *eventLog
	users       *services.UserService
	tokens      *services.TokenService
	recipes     *services.RecipeService
	tags        *services.LabelService
	ingredients *services.LabelService
}

func newEnv(t *testing.T, opts ...services.UserOption) *env {
	t.Helper()
	s := memory.New()
	blobs := storage.NewMemoryBackend("recipes")
	events := &eventLog{}
	repos := s.Repositories()

	opts = append([]services.UserOption{services.WithHashCost(bcrypt.MinCost)}, opts...)
	users := services.NewUserService(s.Users(), opts...)
	return &env{
		store:       s,
		blobs:       blobs,
		events:      events,
		users:       users,
		tokens:      services.NewTokenService(s.Tokens(), s.Users(), auth.NewKeySigner("test-secret")),
		recipes:     services.NewRecipeService(repos, s, storage.NewStorage(blobs), events, zerolog.Nop()),
		tags:        services.NewLabelService(types.KindTag, repos),
		ingredients: services.NewLabelService(types.KindIngredient, repos),
	}
}

func (e *env) newUser(t *testing.T, email, username string) types.User {
	t.Helper()
	user, err := e.users.CreateUser(context.Background(), services.NewUser{
		Email:    email,
		Username: username,
		Password: "pass12345",
	})
	require.NoError(t, err)
	return user
}

type eventLog struct {
	mu     sync.Mutex
	events []types.RecipeEvent
}

func (l *eventLog) Publish(ctx context.Context, event types.RecipeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}

func names(labels []types.Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.Name)
	}
	return out
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var verr *services.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func typesFlagsInactive() types.UserFlags {
	return types.UserFlags{IsActive: ptr(false)}
}

func zeroLogger() zerolog.Logger {
	return zerolog.Nop()
}
