// Package email delivers the registry's transactional mail: share-link
// notices sent to the recipient a credential owner names. Delivery is
// best-effort and never part of the consistency boundary.
package email

import "context"

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
