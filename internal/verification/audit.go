// Package verification implements the credential verification engine and
// its append-only audit trail.
package verification

import (
	"context"

	"github.com/google/uuid"
)

// AuditLog is the append-only store of verification attempts. There is no
// update or delete: every attempt, successful or not, leaves exactly one
// permanent record. Append is safe to call concurrently without
// coordination; records carry no cross-record invariant.
//
// Both MemoryAuditLog and PostgresAuditLog implement this interface.
type AuditLog interface {
	// Append persists one record. Sets ID and VerifiedAt when unset.
	Append(ctx context.Context, rec *Record) error

	// Get returns a single record by ID.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// ListByVerifier returns a verifier's records, newest first.
	// page is 1-based.
	ListByVerifier(ctx context.Context, verifierID uuid.UUID, page, limit int) (*Page, error)
}
