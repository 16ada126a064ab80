// Package store persists sessions. The contract every implementation must
// honor: Update replaces the whole row in one statement, so a cycle's
// fragments, assets, history, and status land together or not at all.
package store

import (
	"errors"
	"time"

	"gamesmith/internal/session"
)

// ErrNotFound is returned when no session exists for the requested id.
var ErrNotFound = errors.New("session not found")

// Summary is the listing projection: enough to render a session picker
// without loading fragments or history.
type Summary struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Status    session.Status `json:"status"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionStore is the persistence boundary.
type SessionStore interface {
	// Insert writes a new session row.
	Insert(s *session.Session) error
	// Get loads a session or returns ErrNotFound.
	Get(id string) (*session.Session, error)
	// Update replaces the full session row atomically.
	Update(s *session.Session) error
	// SetErrorReport records a pending error report without touching the
	// rest of the row. A nil report clears the slot.
	SetErrorReport(id string, report *session.ErrorReport) error
	// List returns summaries of all sessions, most recently updated first.
	List() ([]Summary, error)
	// Close releases the underlying database.
	Close() error
}
