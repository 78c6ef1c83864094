package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/sage-warehouse/internal/domain/user"
)

var (
	// ErrInvalidCredentials is returned when the email or password is wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrWrongPassword is returned when the current password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginInput is the sign-in payload.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordInput replaces the password of a signed-in user.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// Session is the result of a successful sign-up or sign-in.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *user.User
}

// Validator checks tagged input structs.
type Validator interface {
	Struct(s any) error
}

// Service registers and authenticates users.
type Service struct {
	users     user.Repository
	tokens    *Tokens
	validator Validator
	cost      int
	now       func() time.Time
}

// NewService creates an auth Service.
func NewService(users user.Repository, tokens *Tokens, v Validator) *Service {
	return &Service{
		users:     users,
		tokens:    tokens,
		validator: v,
		cost:      bcrypt.DefaultCost,
		now:       time.Now,
	}
}

// Register creates a USER account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, user.ErrEmailTaken
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, errors.Wrap(err, "lookup email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	now := s.now()
	u := &user.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         user.RoleUser,
		Cart:         []user.CartItem{},
		Favorites:    []string{},
		OrderIDs:     []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return s.session(u)
}

// Login verifies the credentials and issues a new token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, normalizeEmail(in.Email))
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup email")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(u)
}

// ChangePassword verifies the current password of userID, stores the new
// one and issues a fresh token.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) (*Session, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return nil, ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}
	now := s.now()
	if err := s.users.SetPasswordHash(ctx, u.ID, string(hash), now); err != nil {
		return nil, errors.Wrap(err, "set password")
	}
	u.PasswordHash = string(hash)
	u.UpdatedAt = now
	return s.session(u)
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(raw string) (Identity, error) {
	return s.tokens.Verify(raw)
}

func (s *Service) session(u *user.User) (*Session, error) {
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
