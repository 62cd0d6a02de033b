// Package messages persists conversation turns. A turn is inserted with a
// NULL answer before the upstream exchange starts and completed exactly once.
package messages

import (
	"context"

	"github.com/mlevkov/chatgate/internal/server/models"
)

// Repository is the storage contract for conversation turns.
type Repository interface {
	// Create inserts the question with a NULL answer and returns the row id.
	Create(ctx context.Context, message *models.Message) (int64, error)
	// CompleteAnswer fills the answer of a previously recorded turn.
	CompleteAnswer(ctx context.Context, id int64, answer string) error
	// ListBySession returns the owned session's turns, oldest first.
	ListBySession(ctx context.Context, sessionID, ownerID string) ([]*models.Message, error)
	// DeleteBySessionIDs removes all turns of the given sessions.
	DeleteBySessionIDs(ctx context.Context, sessionIDs []string) error
}
