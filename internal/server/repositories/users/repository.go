// Package users persists gateway user accounts.
package users

import (
	"context"

	"github.com/mlevkov/chatgate/internal/server/models"
)

// Repository is the storage contract for user accounts.
type Repository interface {
	// Create inserts the user and returns it with the generated fields set.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	// GetByLogin resolves a user by username or student id. Email is not an
	// accepted login identifier.
	GetByLogin(ctx context.Context, loginID string) (*models.User, error)
	// GetByID resolves a user by primary key.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// EmailExists reports whether the email is taken, case-insensitively.
	EmailExists(ctx context.Context, email string) (bool, error)
	// UsernameExists reports whether the username is taken.
	UsernameExists(ctx context.Context, username string) (bool, error)
	// StudentIDExists reports whether the student id is taken.
	StudentIDExists(ctx context.Context, studentID string) (bool, error)
}
