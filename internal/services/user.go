package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// NewUser is the payload for account creation.
type NewUser struct {
	Email    string          `json:"email" validate:"email,max=255"`
	Username string          `json:"username" validate:"max=255"`
	Password string          `json:"password" validate:"min=5,max=72"`
	Flags    types.UserFlags `json:"-" validate:"-"`
}

// ProfileInput carries profile changes. Nil fields are left untouched.
type ProfileInput struct {
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Username *string `json:"username" validate:"omitempty,max=255"`
	Password *string `json:"password" validate:"omitempty,min=5,max=72"`
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo            UserRepository
	requireVerified bool
	hashCost        int
}

type UserOption func(*UserService)

// WithRequireVerified makes Authenticate reject accounts that have not
// verified their email.
func WithRequireVerified(required bool) UserOption {
	return func(s *UserService) { s.requireVerified = required }
}

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) UserOption {
	return func(s *UserService) { s.hashCost = cost }
}

func NewUserService(repo UserRepository, opts ...UserOption) *UserService {
	s := &UserService{repo: repo, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateUser registers a regular account. The account is active and every
// other flag is off unless overridden.
func (s *UserService) CreateUser(ctx context.Context, in NewUser) (types.User, error) {
	flags := in.Flags
	user := types.User{
		IsActive:    boolOr(flags.IsActive, true),
		IsVerified:  boolOr(flags.IsVerified, false),
		IsStaff:     boolOr(flags.IsStaff, false),
		IsSuperuser: boolOr(flags.IsSuperuser, false),
	}
	return s.create(ctx, in, user)
}

// CreateSuperuser registers an account with every flag on. Explicitly
// asking for a non-staff or non-superuser account is an error.
func (s *UserService) CreateSuperuser(ctx context.Context, in NewUser) (types.User, error) {
	verr := &ValidationError{}
	if in.Flags.IsStaff != nil && !*in.Flags.IsStaff {
		verr.Add("is_staff", "Superuser must have is_staff=true.")
	}
	if in.Flags.IsSuperuser != nil && !*in.Flags.IsSuperuser {
		verr.Add("is_superuser", "Superuser must have is_superuser=true.")
	}
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	user := types.User{
		IsActive:    true,
		IsVerified:  true,
		IsStaff:     true,
		IsSuperuser: true,
	}
	return s.create(ctx, in, user)
}

func (s *UserService) create(ctx context.Context, in NewUser, user types.User) (types.User, error) {
	verr := &ValidationError{}
	requireText(verr, "email", &in.Email, true)
	requireText(verr, "username", &in.Username, true)
	if in.Password == "" {
		verr.Add("password", msgBlank)
	}
	if verr.Empty() {
		verr.Merge(validateStruct(in))
	}
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return types.User{}, err
	}

	user.Email = NormalizeEmail(in.Email)
	user.Username = in.Username
	user.PasswordHash = hash

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		return types.User{}, duplicateToValidation(err)
	}
	return created, nil
}

// Authenticate checks an email and password pair. Every rejection other
// than a blank field is reported as ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = strings.TrimSpace(email)

	verr := &ValidationError{}
	requireText(verr, "email", &email, true)
	if password == "" {
		verr.Add("password", msgBlank)
	}
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return types.User{}, ErrInvalidCredentials
	}
	if s.requireVerified && !user.IsVerified {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UpdateProfile applies profile changes for the user. Without partial,
// email, username and password must all be supplied.
func (s *UserService) UpdateProfile(ctx context.Context, userID int, in ProfileInput, partial bool) (types.User, error) {
	verr := &ValidationError{}
	requireText(verr, "email", in.Email, !partial)
	requireText(verr, "username", in.Username, !partial)
	if in.Password == nil && !partial {
		verr.Add("password", msgRequired)
	} else if in.Password != nil && *in.Password == "" {
		verr.Add("password", msgBlank)
	}
	if verr.Empty() {
		verr.Merge(validateStruct(in))
	}
	if err := verr.Err(); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if in.Email != nil {
		user.Email = NormalizeEmail(*in.Email)
	}
	if in.Username != nil {
		user.Username = *in.Username
	}
	if in.Password != nil {
		hash, err := s.hash(*in.Password)
		if err != nil {
			return types.User{}, err
		}
		user.PasswordHash = hash
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, duplicateToValidation(err)
	}
	return updated, nil
}

func (s *UserService) hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// NormalizeEmail lowercases the domain part of an address and keeps the
// local part as given.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at+1] + strings.ToLower(email[at+1:])
}

func duplicateToValidation(err error) error {
	switch {
	case errors.Is(err, store.ErrDuplicateEmail):
		return NewValidationError("email", "user with this email already exists.")
	case errors.Is(err, store.ErrDuplicateUsername):
		return NewValidationError("username", "user with this username already exists.")
	}
	return err
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
