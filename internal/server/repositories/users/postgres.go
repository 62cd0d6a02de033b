package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/dbx"
	"github.com/mlevkov/chatgate/internal/server/models"
)

// postgres class 23 integrity violation for duplicate keys
const codeUniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, email, username, student_id, password_hash, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, nullIfEmpty(user.Username), nullIfEmpty(user.StudentID),
		user.PasswordHash, user.CreatedAt).Scan(&user.CreatedAt)

	if err != nil {
		// a registration racing past the exists checks lands here
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return nil, conflictFromConstraint(pgErr.ConstraintName)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func conflictFromConstraint(constraint string) error {
	switch {
	case strings.Contains(constraint, "email"):
		return fmt.Errorf("email already registered: %w", common.ErrorConflict)
	case strings.Contains(constraint, "username"):
		return fmt.Errorf("username already exists: %w", common.ErrorConflict)
	case strings.Contains(constraint, "student_id"):
		return fmt.Errorf("student id already exists: %w", common.ErrorConflict)
	default:
		return fmt.Errorf("user already exists: %w", common.ErrorConflict)
	}
}

func (r *PostgresRepository) GetByLogin(ctx context.Context, loginID string) (*models.User, error) {
	query :=
		`SELECT id, email, COALESCE(username, ''), COALESCE(student_id, ''), password_hash, created_at
		 FROM users
		 WHERE username = $1 OR student_id = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, loginID))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, email, COALESCE(username, ''), COALESCE(student_id, ''), password_hash, created_at
		 FROM users
		 WHERE id = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email)
}

func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username)
}

func (r *PostgresRepository) StudentIDExists(ctx context.Context, studentID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE student_id = $1)`, studentID)
}

func (r *PostgresRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return found, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.StudentID, &user.PasswordHash, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
