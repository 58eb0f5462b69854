// Package db provides the search journal database interface and implementations.
package db

import "github.com/blacktop/unicycle/internal/model"

// Database is the interface that wraps the search journal operations.
type Database interface {
	// Connect connects to the database.
	Connect() error

	// CreateSession stores a new session.
	CreateSession(s *model.Session) error

	// SaveSession overwrites the stored session fields (not its steps).
	SaveSession(s *model.Session) error

	// GetSession returns the session with its steps and scores.
	// It returns model.ErrNotFound if the id does not exist.
	GetSession(id string) (*model.Session, error)

	// ListSessions returns every session, newest first, without steps.
	ListSessions() ([]*model.Session, error)

	// AddStep appends a step to a session.
	// It returns model.ErrNotFound if the session does not exist.
	AddStep(sessionID string, step *model.Step) error

	// DeleteSession removes a session and its steps.
	// It returns model.ErrNotFound if the id does not exist.
	DeleteSession(id string) error

	// Close closes the database.
	Close() error
}
