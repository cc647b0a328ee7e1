// Package notify delivers best-effort event notifications to interested
// consumers (frontend push relays, downstream indexers).
//
// Delivery is at-most-once and explicitly outside the consistency
// boundary: publishers call the bus only after committing state, and a
// lost or duplicated notification never affects registry records.
package notify

import "context"

// Event names published by the registry.
const (
	EventCredentialIssued   = "credential.issued"
	EventCredentialRevoked  = "credential.revoked"
	EventCredentialVerified = "credential.verified"
	EventShareLinkCreated   = "sharelink.created"
	EventShareLinkAccessed  = "sharelink.accessed"
)

// Bus publishes named events with a string payload. Implementations must
// never block the caller on delivery and must swallow delivery errors.
type Bus interface {
	Publish(ctx context.Context, event string, payload map[string]string)
}
