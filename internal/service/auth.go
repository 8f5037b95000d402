// Package service holds the business logic behind the HTTP API: account
// registration and login, and the book catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shelfmark/shelfmark-server/internal/auth"
	"github.com/shelfmark/shelfmark-server/internal/domain"
	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
	"github.com/shelfmark/shelfmark-server/internal/id"
	"github.com/shelfmark/shelfmark-server/internal/store"
	"github.com/shelfmark/shelfmark-server/internal/validation"
)

const bearerScheme = "Bearer"

// AuthService registers accounts, checks credentials and verifies access
// tokens.
type AuthService struct {
	store      *store.Store
	tokens     auth.TokenIssuer
	validator  *validation.Validator
	bcryptCost int
	logger     *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(store *store.Store, tokens auth.TokenIssuer, bcryptCost int, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if bcryptCost <= 0 {
		bcryptCost = auth.DefaultBcryptCost
	}
	return &AuthService{
		store:      store,
		tokens:     tokens,
		validator:  validation.New(),
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// SignupRequest contains registration data.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,emailshape"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest contains user credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// Register creates an account and returns a token for it.
// Returns ErrDuplicateEmail when the email is already registered.
func (s *AuthService) Register(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	// Reject known emails before paying for the hash. The unique index
	// still catches a concurrent signup.
	_, err := s.store.GetUserByEmail(ctx, req.Email)
	if err == nil {
		return nil, domainerrors.ErrDuplicateEmail
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.Persistence(err)
	}

	passwordHash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, domainerrors.ValidationWithDetails("password is too long",
				map[string]string{"password": err.Error()})
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := id.Generate(id.PrefixUser)
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	user := &domain.User{
		Record:       domain.Record{ID: userID},
		Email:        req.Email,
		PasswordHash: passwordHash,
	}
	user.InitTimestamps()

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return nil, domainerrors.ErrDuplicateEmail
		}
		return nil, domainerrors.Persistence(err)
	}

	token, err := s.tokens.Issue(userID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user registered", "user_id", userID)

	return &AuthResponse{Token: token, UserID: userID}, nil
}

// Login checks credentials and returns a fresh token.
// An unknown email and a wrong password both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Don't leak whether email exists
			return nil, domainerrors.ErrInvalidCredentials
		}
		return nil, domainerrors.Persistence(err)
	}

	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		return nil, domainerrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)

	return &AuthResponse{Token: token, UserID: user.ID}, nil
}

// Authenticate verifies an Authorization header value and returns the user
// ID it carries. The "Bearer" scheme is optional. An absent header is
// ErrMissingToken; a header with no token after the scheme is invalid. The
// user record is not re-read.
func (s *AuthService) Authenticate(_ context.Context, header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", domainerrors.ErrMissingToken
	}

	token := header
	if scheme, rest, _ := strings.Cut(header, " "); strings.EqualFold(scheme, bearerScheme) {
		token = strings.TrimSpace(rest)
	}
	if token == "" {
		return "", domainerrors.InvalidToken(errors.New("empty bearer token"))
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", domainerrors.InvalidToken(err)
	}
	return claims.UserID, nil
}
