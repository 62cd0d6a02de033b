// Package sessions persists conversation sessions. Every mutating query is a
// single conditional statement filtered by id AND owner, so an unowned session
// is indistinguishable from a missing one and the check cannot race a
// concurrent delete.
package sessions

import (
	"context"

	"github.com/mlevkov/chatgate/internal/server/models"
)

// ListFilter narrows List results.
type ListFilter struct {
	Kind       models.SessionKind
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Repository is the storage contract for sessions.
type Repository interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	// Get returns the session only when it is owned by ownerID.
	Get(ctx context.Context, id, ownerID string) (*models.Session, error)
	// Update applies the patch to the owned session and bumps updated_at.
	// Returns common.ErrorNotFound when no owned session matches.
	Update(ctx context.Context, id, ownerID string, patch models.SessionPatch) (*models.Session, error)
	// Archive sets is_active=false; reports whether an owned session matched.
	Archive(ctx context.Context, id, ownerID string) (bool, error)
	List(ctx context.Context, ownerID string, filter ListFilter) ([]*models.Session, error)
	// CountOwned reports how many of ids belong to ownerID and are of kind.
	CountOwned(ctx context.Context, ids []string, ownerID string, kind models.SessionKind) (int, error)
	// DeleteByIDs removes the sessions and returns the number deleted.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
