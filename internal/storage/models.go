package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session is one advisor conversation.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one message within a session. Seq orders turns; the sequence is
// append-only.
type Turn struct {
	ID        string
	SessionID string
	Seq       int
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}
