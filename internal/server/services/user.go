// Package services contains server-side business logic. This file implements
// UserService, which handles registration, credential checks, and issuing JWTs.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/server/auth"
	"github.com/mlevkov/chatgate/internal/server/config"
	"github.com/mlevkov/chatgate/internal/server/models"
	"github.com/mlevkov/chatgate/internal/server/repositories/repomanager"
)

// MinPasswordLength is the registration password policy.
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RegisterRequest carries the registration input. Username and StudentID are
// optional; when present they must be unique.
type RegisterRequest struct {
	Email     string
	Username  string
	StudentID string
	Password  string
}

// UserService provides authentication-related operations:
// - Register: create users
// - Login: verify credentials and mint a bearer token
// - ResolveUser: map a verified token subject back to a live user
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	jwtSecret   []byte
	tokenTTL    time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		jwtSecret:   []byte(cfg.SecretKey),
		tokenTTL:    cfg.AccessTokenValidityDuration,
	}
}

// Register validates the candidate, rejects duplicates (checked in order:
// email, username, student id; the first conflict wins) and stores the user
// with a bcrypt password hash.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if !emailPattern.MatchString(req.Email) {
		return nil, fmt.Errorf("invalid email: %w", common.ErrorValidation)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters long: %w",
			MinPasswordLength, common.ErrorValidation)
	}

	repo := s.repomanager.Users(s.db)

	taken, err := repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if taken {
		return nil, fmt.Errorf("email already registered: %w", common.ErrorConflict)
	}

	if req.Username != "" {
		taken, err = repo.UsernameExists(ctx, req.Username)
		if err != nil {
			return nil, common.ErrorInternal
		}
		if taken {
			return nil, fmt.Errorf("username already exists: %w", common.ErrorConflict)
		}
	}

	if req.StudentID != "" {
		taken, err = repo.StudentIDExists(ctx, req.StudentID)
		if err != nil {
			return nil, common.ErrorInternal
		}
		if taken {
			return nil, fmt.Errorf("student id already exists: %w", common.ErrorConflict)
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		StudentID:    req.StudentID,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	created, err := repo.Create(ctx, user)
	if err != nil {
		// a concurrent registration can slip past the exists checks and
		// trip the unique index instead
		if errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %v", err)
	}
	return created, nil
}

// Login resolves the login id against username or student id (email is not an
// accepted login identifier), verifies the password, and mints a bearer token.
// All failures collapse into ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, loginID, password string) (token string, user *models.User, err error) {
	repo := s.repomanager.Users(s.db)

	user, err = repo.GetByLogin(ctx, loginID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil, common.ErrorUnauthorized
		}
		return "", nil, common.ErrorInternal
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, common.ErrorUnauthorized
	}

	token, err = auth.GenerateToken(user.ID, s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", nil, common.ErrorInternal
	}

	return token, user, nil
}

// ResolveUser maps a token subject to a live user. A structurally valid token
// whose subject no longer resolves still fails with ErrInvalidToken.
func (s *UserService) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}
