package verification

import (
	"time"

	"github.com/credanchor/credanchor/internal/credential"
	"github.com/credanchor/credanchor/internal/ledger"
	"github.com/google/uuid"
)

// Method identifies the lookup strategy used by a verification attempt.
type Method string

const (
	MethodDocumentHash Method = "document-hash"
	MethodQR           Method = "qr"
	MethodID           Method = "id"
)

// Reason explains why a verification returned invalid, and distinguishes
// definitive answers from retryable infrastructure conditions.
type Reason string

const (
	ReasonOK                Reason = ""
	ReasonNotFound          Reason = "not_found"
	ReasonReceiptNotFound   Reason = "receipt_not_found"
	ReasonContentCorrupted  Reason = "content_corrupted"
	ReasonContentMissing    Reason = "content_missing"
	ReasonRevoked           Reason = "revoked"
	ReasonLedgerUnavailable Reason = "ledger_unavailable"
)

// Retryable reports whether the reason is an infrastructure condition the
// caller may retry, as opposed to a definitive invalid answer.
func (r Reason) Retryable() bool {
	return r == ReasonLedgerUnavailable
}

// Request carries exactly one lookup key, tagged by method.
type Request struct {
	Method     Method
	Value      string
	VerifierID uuid.UUID
}

// Record is an immutable audit entry capturing one verification attempt.
// A record is created for every attempt — hit or miss, valid or invalid.
// CredentialID is nil when no credential was resolved.
type Record struct {
	ID            uuid.UUID  `json:"id"             db:"id"`
	CredentialID  *uuid.UUID `json:"credential_id"  db:"credential_id"`
	VerifierID    uuid.UUID  `json:"verifier_id"    db:"verifier_id"`
	Method        Method     `json:"method"         db:"method"`
	Result        bool       `json:"result"         db:"result"`
	Reason        Reason     `json:"reason"         db:"reason"`
	TxRef         string     `json:"tx_ref"         db:"tx_ref"`
	BlockHeight   uint64     `json:"block_height"   db:"block_height"`
	Confirmations uint64     `json:"confirmations"  db:"confirmations"`
	VerifiedAt    time.Time  `json:"verified_at"    db:"verified_at"`
}

// Result is the composed outcome returned to the caller. IsValid is true
// iff the receipt resolved, the content integrity check passed, and the
// credential is not revoked.
type Result struct {
	IsValid       bool                 `json:"is_valid"`
	Reason        Reason               `json:"reason,omitempty"`
	Credential    *credential.Snapshot `json:"credential,omitempty"`
	Receipt       *ledger.Receipt      `json:"receipt,omitempty"`
	Confirmations uint64               `json:"confirmations"`
	RecordID      uuid.UUID            `json:"record_id"`
	VerifiedAt    time.Time            `json:"verified_at"`
}

// Page wraps a page of audit records for the history endpoint.
type Page struct {
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
	PageNum int       `json:"page"`
	Limit   int       `json:"limit"`
	Pages   int       `json:"pages"`
}
