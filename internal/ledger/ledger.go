// Package ledger provides the client for the distributed ledger that
// anchors credential content addresses.
//
// Anchoring submits a transaction binding a content address to a subject
// identity and waits for confirmation, returning a Receipt. Resolving a
// transaction reference returns the receipt recorded on chain, or
// ErrReceiptNotFound. Confirmations are always recomputed from the current
// chain height — never cached — because the chain keeps advancing.
//
// Two implementations of the Client interface are provided:
//   - SimClient: in-process simulated chain, for testing and development.
//   - RPCClient: JSON-RPC over HTTP against a real ledger node.
package ledger

import (
	"context"
	"errors"
)

// Receipt is the proof that an anchoring transaction was accepted.
type Receipt struct {
	TxRef       string `json:"tx_ref"`
	BlockHeight uint64 `json:"block_height"`
}

// Permanent anchoring failures. These are never retried.
var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidParams     = errors.New("ledger: invalid parameters")
)

// ErrReceiptNotFound is returned by Resolve when no transaction with the
// given reference exists on chain.
var ErrReceiptNotFound = errors.New("ledger: receipt not found")

// ErrUnavailable is returned after the retry budget for transient RPC
// failures is exhausted. Callers may treat it as retryable later.
var ErrUnavailable = errors.New("ledger: unavailable")

// Client is the interface to the anchoring ledger.
type Client interface {
	// Anchor submits a transaction binding contentAddress to subject and
	// awaits confirmation. Transient failures are retried internally with
	// bounded exponential backoff; permanent failures surface immediately.
	Anchor(ctx context.Context, contentAddress, subject string) (*Receipt, error)

	// Resolve looks up the receipt for a transaction reference.
	Resolve(ctx context.Context, txRef string) (*Receipt, error)

	// Height returns the current chain height.
	Height(ctx context.Context) (uint64, error)
}

// Confirmations computes the finality signal for a receipt given the
// current chain height. A receipt at the tip has zero confirmations.
func Confirmations(height uint64, r *Receipt) uint64 {
	if r == nil || height < r.BlockHeight {
		return 0
	}
	return height - r.BlockHeight
}
