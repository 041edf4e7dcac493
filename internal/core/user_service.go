package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"mchatbot.io/support-backend/internal/auth"
	"mchatbot.io/support-backend/internal/store"
)

const (
	minPasswordLength = 8
	minNameLength     = 2
)

type UserStore interface {
	CreateUser(ctx context.Context, u *store.User) error
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
}

type UserService struct {
	users  UserStore
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

func NewUserService(users UserStore, tokens *auth.TokenIssuer, logger *zap.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, logger: logger}
}

type RegisterRequest struct {
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	Password      string  `json:"password"`
	PreferredName *string `json:"preferred_name"`
	AgeRange      *string `json:"age_range"`
}

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        *store.User `json:"user"`
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*store.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) < minNameLength {
		return nil, invalid("name", "must be at least %d characters long", minNameLength)
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return nil, invalid("password", "must be at least %d characters long", minPasswordLength)
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &store.User{
		Email:         email,
		Name:          name,
		PreferredName: trimmedOrNil(req.PreferredName),
		AgeRange:      trimmedOrNil(req.AgeRange),
		PasswordHash:  hashedPassword,
		IsActive:      true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	hash := auth.DummyHash()
	if user != nil {
		hash = user.PasswordHash
	}
	if !auth.CheckPasswordHash(password, hash) || user == nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	token, err := s.tokens.GenerateJWT(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &LoginResult{AccessToken: token, TokenType: "bearer", User: user}, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	userID, err := s.tokens.ValidateJWT(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" || !strings.Contains(addr.Address, ".") {
		return "", invalid("email", "must be a valid email address")
	}
	return strings.ToLower(addr.Address), nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
