// Package repository keeps the live analysis sessions of the service.
package repository

import (
	"context"

	"github.com/okian/combatlink/internal/domain/session"
)

// Store provides access to live sessions by id.
type Store interface {
	// Put adds a new session. Returns ErrExists if the id is taken.
	Put(ctx context.Context, s *session.Session) error

	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*session.Session, error)

	// Delete removes a session; unknown ids are ignored.
	Delete(ctx context.Context, id string)

	// List returns summaries of all sessions, oldest first.
	List(ctx context.Context) []session.Summary

	// Count returns the number of live sessions.
	Count(ctx context.Context) int
}
