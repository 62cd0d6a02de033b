package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/dbx"
	"github.com/mlevkov/chatgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, name, owner_id, kind, created_at, updated_at, is_active`

func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {

	query :=
		`INSERT INTO sessions (id, name, owner_id, kind, created_at, updated_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		session.ID, session.Name, session.OwnerID, string(session.Kind),
		session.CreatedAt, session.UpdatedAt, session.IsActive).
		Scan(&session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id, ownerID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		 FROM sessions
		 WHERE id = $1 AND owner_id = $2
		 `

	return scanSession(r.db.QueryRowContext(ctx, query, id, ownerID))
}

// Update builds a SET clause from the non-nil patch fields and applies it in
// one conditional statement. The owner filter is part of the same statement,
// so the ownership check and the write cannot be interleaved.
func (r *PostgresRepository) Update(ctx context.Context, id, ownerID string, patch models.SessionPatch) (*models.Session, error) {

	sets := make([]string, 0, 3)
	args := make([]any, 0, 5)

	if patch.Name != nil {
		args = append(args, *patch.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.IsActive != nil {
		args = append(args, *patch.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, common.ErrorNoChanges
	}

	args = append(args, time.Now())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id, ownerID)
	query := fmt.Sprintf(
		`UPDATE sessions SET %s WHERE id = $%d AND owner_id = $%d RETURNING `+sessionColumns,
		strings.Join(sets, ", "), len(args)-1, len(args))

	return scanSession(r.db.QueryRowContext(ctx, query, args...))
}

func (r *PostgresRepository) Archive(ctx context.Context, id, ownerID string) (bool, error) {
	query :=
		`UPDATE sessions SET is_active = FALSE, updated_at = $1
		 WHERE id = $2 AND owner_id = $3
		 `

	res, err := r.db.ExecContext(ctx, query, time.Now(), id, ownerID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return affected > 0, nil
}

func (r *PostgresRepository) List(ctx context.Context, ownerID string, filter ListFilter) ([]*models.Session, error) {

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE owner_id = $1 AND kind = $2`
	args := []any{ownerID, string(filter.Kind)}

	if filter.ActiveOnly {
		query += ` AND is_active = TRUE`
	}

	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Session, 0)
	for rows.Next() {
		s := &models.Session{}
		var kind string
		if err := rows.Scan(&s.ID, &s.Name, &s.OwnerID, &kind, &s.CreatedAt, &s.UpdatedAt, &s.IsActive); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		s.Kind = models.SessionKind(kind)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) CountOwned(ctx context.Context, ids []string, ownerID string, kind models.SessionKind) (int, error) {

	placeholders, args := inArgs(ids)
	args = append(args, ownerID, string(kind))
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM sessions WHERE id IN (%s) AND owner_id = $%d AND kind = $%d`,
		placeholders, len(args)-1, len(args))

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {

	placeholders, args := inArgs(ids)
	query := fmt.Sprintf(`DELETE FROM sessions WHERE id IN (%s)`, placeholders)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return affected, nil
}

func scanSession(row *sql.Row) (*models.Session, error) {
	s := &models.Session{}
	var kind string
	err := row.Scan(&s.ID, &s.Name, &s.OwnerID, &kind, &s.CreatedAt, &s.UpdatedAt, &s.IsActive)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	s.Kind = models.SessionKind(kind)
	return s, nil
}

// inArgs builds "$1, $2, ..." placeholders and the matching args slice.
func inArgs(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}
