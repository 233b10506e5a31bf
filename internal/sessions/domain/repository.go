package domain

import (
	"context"
	"time"
)

// SessionRepository defines the persistence interface for Session entities.
type SessionRepository interface {
	// Save inserts or replaces the session for its profile.
	Save(ctx context.Context, session *Session) error

	// FindByProfile retrieves the session saved for profile.
	// Returns SessionNotFoundError if none exists.
	FindByProfile(ctx context.Context, profile string) (*Session, error)

	// List returns every saved session ordered by profile name.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes the session for profile.
	// Returns SessionNotFoundError if none exists.
	Delete(ctx context.Context, profile string) error
}

// Invocation is one journaled handler invocation.
type Invocation struct {
	ID        string
	Command   string
	Target    string
	Outcome   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// InvocationRepository stores the invocation history.
type InvocationRepository interface {
	// Append adds an invocation. IDs are unique; appending an existing ID fails.
	Append(ctx context.Context, inv Invocation) error

	// Recent returns up to limit invocations, newest first. A limit <= 0
	// returns all of them.
	Recent(ctx context.Context, limit int) ([]Invocation, error)
}
