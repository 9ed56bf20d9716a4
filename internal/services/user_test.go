package services_test

import (
	"context"
	"testing"

	"github.com/recipebox/apiserver/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateUser_NormalizesEmailDomainOnly(t *testing.T) {
	e := newEnv(t)
	cases := map[string]string{
		"test1@EXAMPLE.com":   "test1@example.com",
		"Test2@Example.com":   "Test2@example.com",
		"TEST3@EXAMPLE.COM":   "TEST3@example.com",
		" test4@example.COM ": "test4@example.com",
	}
	i := 0
	for input, want := range cases {
		i++
		user, err := e.users.CreateUser(context.Background(), services.NewUser{
			Email:    input,
			Username: "user" + string(rune('a'+i)),
			Password: "sample123",
		})
		require.NoError(t, err, input)
		assert.Equal(t, want, user.Email)
	}
}

func TestCreateUser_HashesPasswordAndSetsDefaults(t *testing.T) {
	e := newEnv(t)
	user := e.newUser(t, "cook@example.com", "cook")

	assert.NotEqual(t, "pass12345", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pass12345")))
	assert.True(t, user.IsActive)
	assert.False(t, user.IsVerified)
	assert.False(t, user.IsStaff)
	assert.False(t, user.IsSuperuser)
}

func TestCreateUser_RequiresEmailAndUsername(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.users.CreateUser(ctx, services.NewUser{Email: "", Username: "u", Password: "pass12345"})
	assert.Contains(t, fieldErrors(t, err), "email")

	_, err = e.users.CreateUser(ctx, services.NewUser{Email: "a@example.com", Username: "   ", Password: "pass12345"})
	assert.Contains(t, fieldErrors(t, err), "username")
}

func TestCreateUser_ShortPassword(t *testing.T) {
	e := newEnv(t)
	_, err := e.users.CreateUser(context.Background(), services.NewUser{Email: "a@example.com", Username: "a", Password: "te"})
	assert.Contains(t, fieldErrors(t, err), "password")

	_, err = e.store.Users().GetByEmail(context.Background(), "a@example.com")
	require.Error(t, err, "rejected user must not be stored")
}

func TestCreateUser_Duplicates(t *testing.T) {
	e := newEnv(t)
	e.newUser(t, "a@example.com", "alice")

	_, err := e.users.CreateUser(context.Background(), services.NewUser{Email: "a@example.com", Username: "other", Password: "pass12345"})
	assert.Contains(t, fieldErrors(t, err), "email")

	_, err = e.users.CreateUser(context.Background(), services.NewUser{Email: "b@example.com", Username: "alice", Password: "pass12345"})
	assert.Contains(t, fieldErrors(t, err), "username")
}

func TestCreateSuperuser(t *testing.T) {
	e := newEnv(t)
	user, err := e.users.CreateSuperuser(context.Background(), services.NewUser{
		Email:    "root@example.com",
		Username: "root",
		Password: "pass12345",
	})
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.True(t, user.IsVerified)
	assert.True(t, user.IsStaff)
	assert.True(t, user.IsSuperuser)
}

func TestCreateSuperuser_RejectsExplicitFalseFlags(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := services.NewUser{Email: "root@example.com", Username: "root", Password: "pass12345"}
	in.Flags.IsSuperuser = ptr(false)
	_, err := e.users.CreateSuperuser(ctx, in)
	assert.Contains(t, fieldErrors(t, err), "is_superuser")

	in = services.NewUser{Email: "root@example.com", Username: "root", Password: "pass12345"}
	in.Flags.IsStaff = ptr(false)
	_, err = e.users.CreateSuperuser(ctx, in)
	assert.Contains(t, fieldErrors(t, err), "is_staff")
}

func TestAuthenticate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	created := e.newUser(t, "Cook@Example.com", "cook")

	user, err := e.users.Authenticate(ctx, "Cook@EXAMPLE.COM", "pass12345")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = e.users.Authenticate(ctx, "Cook@example.com", "wrong-pass")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = e.users.Authenticate(ctx, "nobody@example.com", "pass12345")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = e.users.Authenticate(ctx, "Cook@example.com", "")
	assert.Contains(t, fieldErrors(t, err), "password")
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	e := newEnv(t)
	_, err := e.users.CreateUser(context.Background(), services.NewUser{
		Email:    "idle@example.com",
		Username: "idle",
		Password: "pass12345",
		Flags:    typesFlagsInactive(),
	})
	require.NoError(t, err)

	_, err = e.users.Authenticate(context.Background(), "idle@example.com", "pass12345")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestAuthenticate_RequireVerified(t *testing.T) {
	e := newEnv(t, services.WithRequireVerified(true))
	e.newUser(t, "new@example.com", "newbie")

	_, err := e.users.Authenticate(context.Background(), "new@example.com", "pass12345")
	require.ErrorIs(t, err, services.ErrInvalidCredentials, "unverified accounts look like bad credentials")

	_, err = e.users.CreateSuperuser(context.Background(), services.NewUser{Email: "root@example.com", Username: "root", Password: "pass12345"})
	require.NoError(t, err)
	_, err = e.users.Authenticate(context.Background(), "root@example.com", "pass12345")
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	user := e.newUser(t, "cook@example.com", "cook")

	updated, err := e.users.UpdateProfile(ctx, user.ID, services.ProfileInput{
		Username: ptr("chef"),
		Password: ptr("newpass123"),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "chef", updated.Username)
	assert.Equal(t, "cook@example.com", updated.Email)

	_, err = e.users.Authenticate(ctx, "cook@example.com", "newpass123")
	require.NoError(t, err)
	_, err = e.users.Authenticate(ctx, "cook@example.com", "pass12345")
	require.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestUpdateProfile_FullUpdateRequiresAllFields(t *testing.T) {
	e := newEnv(t)
	user := e.newUser(t, "cook@example.com", "cook")

	_, err := e.users.UpdateProfile(context.Background(), user.ID, services.ProfileInput{Username: ptr("chef")}, false)
	fields := fieldErrors(t, err)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestUpdateProfile_DuplicateUsername(t *testing.T) {
	e := newEnv(t)
	e.newUser(t, "a@example.com", "alice")
	bob := e.newUser(t, "b@example.com", "bob")

	_, err := e.users.UpdateProfile(context.Background(), bob.ID, services.ProfileInput{Username: ptr("alice")}, true)
	assert.Contains(t, fieldErrors(t, err), "username")
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "Mixed.Case@example.com", services.NormalizeEmail("Mixed.Case@EXAMPLE.COM"))
	assert.Equal(t, "odd@name@example.com", services.NormalizeEmail("odd@name@Example.com"))
	assert.Equal(t, "no-at-sign", services.NormalizeEmail(" no-at-sign "))
}
