package repomanager

import (
	"context"
	"database/sql"

	"github.com/mlevkov/chatgate/internal/dbx"
	"github.com/mlevkov/chatgate/internal/server/repositories/messages"
	"github.com/mlevkov/chatgate/internal/server/repositories/sessions"
	"github.com/mlevkov/chatgate/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a concrete DB handle, so the
// same repository code runs against *sql.DB and inside transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Messages(db dbx.DBTX) messages.Repository
}
