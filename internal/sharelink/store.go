// Package sharelink implements scoped, time/view/password-bounded access
// grants to credentials.
package sharelink

import (
	"context"
	"errors"
	"time"
)

// Errors returned by the share-link manager and stores.
var (
	// ErrNotFound — no link with the given identifier exists.
	ErrNotFound = errors.New("share link not found")
	// ErrExpired — the link's time bound has passed.
	ErrExpired = errors.New("share link expired")
	// ErrExhausted — the link's view budget is consumed.
	ErrExhausted = errors.New("share link exhausted")
	// ErrInvalidPassword — password required and missing or wrong.
	// A failed password attempt consumes no view.
	ErrInvalidPassword = errors.New("invalid share link password")
	// ErrForbidden — the actor does not own the credential.
	ErrForbidden = errors.New("not authorized for this credential")
)

// Store is the persistence interface for share links.
// Both *PostgresStore and *MemoryStore implement it.
type Store interface {
	Create(ctx context.Context, link *ShareLink) error
	GetByShareID(ctx context.Context, shareID string) (*ShareLink, error)
	ListByCredential(ctx context.Context, credentialID string) ([]*ShareLink, error)

	// IncrementViews bumps view_count from expected to expected+1 and
	// stamps last_viewed_at. Returns false without changing anything if
	// the stored count no longer equals expected — the caller lost a
	// race with another process and must re-read.
	IncrementViews(ctx context.Context, shareID string, expected int, now time.Time) (bool, error)

	// Deactivate permanently flips active to false.
	Deactivate(ctx context.Context, shareID string) error

	// DeactivateExpired flips active to false on every link whose expiry
	// has passed. Returns the number of links deactivated.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}
