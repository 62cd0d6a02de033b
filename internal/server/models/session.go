package models

import "time"

// SessionKind selects which upstream collection a session is routed to.
type SessionKind string

const (
	KindAssistant SessionKind = "assistant"
	KindAgent     SessionKind = "agent"
)

// Valid reports whether k is one of the known kinds.
func (k SessionKind) Valid() bool {
	return k == KindAssistant || k == KindAgent
}

// Session is one conversation bound to exactly one owner. Archived sessions
// (IsActive=false) stay listed but reject new completions.
type Session struct {
	ID        string
	Name      string
	OwnerID   string
	Kind      SessionKind
	CreatedAt time.Time
	UpdatedAt time.Time
	IsActive  bool
}

// SessionPatch carries the updatable session fields. Nil means "leave as is".
type SessionPatch struct {
	Name     *string
	IsActive *bool
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.Name == nil && p.IsActive == nil
}
