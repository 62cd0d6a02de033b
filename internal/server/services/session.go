package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mlevkov/chatgate/internal/common"
	"github.com/mlevkov/chatgate/internal/dbx"
	"github.com/mlevkov/chatgate/internal/server/models"
	"github.com/mlevkov/chatgate/internal/server/repositories/repomanager"
	"github.com/mlevkov/chatgate/internal/server/repositories/sessions"
)

// DefaultPageSize applies when a list request does not set page_size.
const DefaultPageSize = 30

// SessionRelay is the slice of the upstream client the session service needs.
type SessionRelay interface {
	CreateSession(ctx context.Context, kind models.SessionKind, name, userID string) (string, error)
	DeleteSessions(ctx context.Context, kind models.SessionKind, ids []string) error
}

// ListRequest carries list parameters. Page and PageSize below 1 are floored.
type ListRequest struct {
	Kind       models.SessionKind
	ActiveOnly bool
	Page       int
	PageSize   int
}

// SessionService owns the session lifecycle. Sessions are mirrored upstream:
// create adopts the upstream id as the local id, and batch delete removes the
// upstream mirrors inside the same transaction as the local rows.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	relay       SessionRelay
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, relay SessionRelay) *SessionService {
	return &SessionService{db: db, repomanager: m, relay: relay}
}

// Create mirrors the session upstream first and stores the upstream id as the
// local session id, so completion requests need no id translation.
func (s *SessionService) Create(ctx context.Context, ownerID, name string, kind models.SessionKind) (*models.Session, error) {
	if name == "" {
		return nil, fmt.Errorf("session name is required: %w", common.ErrorValidation)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown session kind %q: %w", kind, common.ErrorValidation)
	}

	upstreamID, err := s.relay.CreateSession(ctx, kind, name, ownerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID:        upstreamID,
		Name:      name,
		OwnerID:   ownerID,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}

	created, err := s.repomanager.Sessions(s.db).Create(ctx, session)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return created, nil
}

// Get returns the owned session.
func (s *SessionService) Get(ctx context.Context, id, ownerID string) (*models.Session, error) {
	return s.repomanager.Sessions(s.db).Get(ctx, id, ownerID)
}

// Update applies the patch to the owned session. An empty patch fails the same
// way an unknown id does, so probing ids with empty bodies reveals nothing.
func (s *SessionService) Update(ctx context.Context, id, ownerID string, patch models.SessionPatch) (*models.Session, error) {
	return s.repomanager.Sessions(s.db).Update(ctx, id, ownerID, patch)
}

// Archive marks the owned session inactive. Archiving an already archived
// session succeeds again; only a missing or unowned id fails.
func (s *SessionService) Archive(ctx context.Context, id, ownerID string) error {
	matched, err := s.repomanager.Sessions(s.db).Archive(ctx, id, ownerID)
	if err != nil {
		return common.ErrorInternal
	}
	if !matched {
		return common.ErrorNotFound
	}
	return nil
}

// List returns one page of the owner's sessions, newest first.
func (s *SessionService) List(ctx context.Context, ownerID string, req ListRequest) ([]*models.Session, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown session kind %q: %w", req.Kind, common.ErrorValidation)
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	result, err := s.repomanager.Sessions(s.db).List(ctx, ownerID, sessions.ListFilter{
		Kind:       req.Kind,
		ActiveOnly: req.ActiveOnly,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	})
	if err != nil {
		return nil, common.ErrorInternal
	}
	return result, nil
}

// Delete removes a batch of owned sessions with their messages, all or
// nothing. The ownership count is scoped to kind, so an id of the other kind
// fails the batch and nothing is forwarded to the wrong upstream collection.
// The upstream mirrors are deleted inside the same transaction, so an
// upstream failure rolls the local deletes back and the batch can be
// retried.
func (s *SessionService) Delete(ctx context.Context, ownerID string, kind models.SessionKind, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("ids are required: %w", common.ErrorValidation)
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown session kind %q: %w", kind, common.ErrorValidation)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		owned, err := s.repomanager.Sessions(tx).CountOwned(ctx, ids, ownerID, kind)
		if err != nil {
			return common.ErrorInternal
		}
		if owned != len(ids) {
			return common.ErrorOwnership
		}

		if err := s.repomanager.Messages(tx).DeleteBySessionIDs(ctx, ids); err != nil {
			return common.ErrorInternal
		}
		if _, err := s.repomanager.Sessions(tx).DeleteByIDs(ctx, ids); err != nil {
			return common.ErrorInternal
		}

		return s.relay.DeleteSessions(ctx, kind, ids)
	})
	return err
}

// Messages lists the turns of an owned session, oldest first. Ownership is
// checked against the session row so an unowned id is a not-found, not an
// empty list.
func (s *SessionService) Messages(ctx context.Context, sessionID, ownerID string) ([]*models.Message, error) {
	if _, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID, ownerID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, common.ErrorInternal
	}

	result, err := s.repomanager.Messages(s.db).ListBySession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return result, nil
}
