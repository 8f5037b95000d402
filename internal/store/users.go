package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

// CreateUser stores a new account.
// Returns ErrEmailExists when another account already holds the email.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	err := s.Users.Create(ctx, user.ID, user)

	var conflict *IndexConflictError
	if errors.As(err, &conflict) && conflict.Index == userEmailIndex {
		return ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user created", "id", user.ID)
	return nil
}

// GetUserByEmail retrieves a user by exact email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.Users.GetByIndex(ctx, userEmailIndex, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, nil
}
