package models

import (
	"database/sql"
	"time"
)

// Message is one question/answer turn. The row is written with a NULL answer
// before the upstream stream opens, so an interrupted exchange still leaves
// an auditable record; Answer is filled in exactly once on completion.
type Message struct {
	ID        int64
	SessionID string
	OwnerID   string
	Question  string
	Answer    sql.NullString
	CreatedAt time.Time
}
