// Package session ties the wire protocol to a conference.Store: it owns the
// open-before-anything-else rule and the request loop that reads JSON lines
// from stdin and answers each with exactly one JSON line.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/confplan-io/confplan/internal/conference"
)

// ErrNoSession is returned when any request other than open arrives before a
// successful open.
var ErrNoSession = errors.New("no session: establish connection first")

// Opener connects to the named database with the given credentials and
// returns a ready store. The production opener dials PostgreSQL and installs
// the schema; tests substitute an in-memory store.
type Opener func(ctx context.Context, database, login, password string) (conference.Store, error)

// Session is the per-connection state: nothing before open, a live store
// after.
type Session struct {
	opener Opener
	store  conference.Store
}

// NewSession creates an unopened session.
func NewSession(opener Opener) *Session {
	return &Session{opener: opener}
}

// Open establishes the store. A repeated open closes the previous store and
// replaces it, but only once the new connection succeeds: a failed re-open
// keeps the previous store serving.
func (s *Session) Open(ctx context.Context, database, login, password string) error {
	store, err := s.opener(ctx, database, login, password)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}

	if s.store != nil {
		_ = s.store.Close()
	}

	s.store = store

	return nil
}

// Store returns the live store, or ErrNoSession before open.
func (s *Session) Store() (conference.Store, error) {
	if s.store == nil {
		return nil, ErrNoSession
	}

	return s.store, nil
}

// Close releases the store if one was opened.
func (s *Session) Close() error {
	if s.store == nil {
		return nil
	}

	err := s.store.Close()
	s.store = nil

	return err
}
