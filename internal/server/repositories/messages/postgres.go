package messages

import (
	"context"
	"fmt"
	"strings"

	"github.com/mlevkov/chatgate/internal/dbx"
	"github.com/mlevkov/chatgate/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, message *models.Message) (int64, error) {

	query :=
		`INSERT INTO messages (session_id, owner_id, question, answer, created_at)
		 VALUES ($1, $2, $3, NULL, $4)
		 RETURNING id
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		message.SessionID, message.OwnerID, message.Question, message.CreatedAt).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	message.ID = id
	return id, nil
}

func (r *PostgresRepository) CompleteAnswer(ctx context.Context, id int64, answer string) error {

	query := `UPDATE messages SET answer = $1 WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, answer, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID, ownerID string) ([]*models.Message, error) {

	query :=
		`SELECT id, session_id, owner_id, question, answer, created_at
		 FROM messages
		 WHERE session_id = $1 AND owner_id = $2
		 ORDER BY created_at ASC
		 `

	rows, err := r.db.QueryContext(ctx, query, sessionID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.OwnerID, &m.Question, &m.Answer, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) DeleteBySessionIDs(ctx context.Context, sessionIDs []string) error {

	placeholders := make([]string, len(sessionIDs))
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`DELETE FROM messages WHERE session_id IN (%s)`, strings.Join(placeholders, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
