package credential

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of an issued credential.
type Status string

const (
	StatusIssued   Status = "issued"
	StatusVerified Status = "verified"
	StatusRevoked  Status = "revoked"
	StatusPending  Status = "pending"
)

// DocType classifies the academic document a credential attests.
type DocType string

const (
	DocDegree      DocType = "degree"
	DocCertificate DocType = "certificate"
	DocTranscript  DocType = "transcript"
	DocDiploma     DocType = "diploma"
)

// Credential is the registry record binding an owner, an issuer, a stored
// document payload, and the ledger receipt that anchors it.
//
// Once anchored (TxRef set), ContentAddress and IssuerID are immutable;
// only Status may change, and only at the issuer's or an admin's hand.
// Revocation is a registry-side fact: a revoked credential verifies as
// invalid even while its ledger receipt remains resolvable.
type Credential struct {
	ID             uuid.UUID         `json:"id"              db:"id"`
	OwnerID        uuid.UUID         `json:"owner_id"        db:"owner_id"`
	IssuerID       uuid.UUID         `json:"issuer_id"       db:"issuer_id"`
	Title          string            `json:"title"           db:"title"`
	DocType        DocType           `json:"doc_type"        db:"doc_type"`
	Institution    string            `json:"institution"     db:"institution"`
	Description    string            `json:"description"     db:"description"`
	ContentAddress string            `json:"content_address" db:"content_address"`
	TxRef          string            `json:"tx_ref"          db:"tx_ref"`
	BlockHeight    uint64            `json:"block_height"    db:"block_height"`
	Metadata       map[string]string `json:"metadata"        db:"metadata"`
	Status         Status            `json:"status"          db:"status"`
	Public         bool              `json:"public"          db:"public"`
	IssuedAt       time.Time         `json:"issued_at"       db:"issued_at"`
	CreatedAt      time.Time         `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"      db:"updated_at"`
}

// Anchored reports whether the credential has a ledger receipt.
func (c *Credential) Anchored() bool {
	return c.TxRef != ""
}

// Snapshot is the read-only view of a credential handed to verifiers and
// share-link consumers. Payload is populated only when the grant allows
// downloading the underlying document.
type Snapshot struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	DocType     DocType           `json:"doc_type"`
	Institution string            `json:"institution"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      Status            `json:"status"`
	TxRef       string            `json:"tx_ref"`
	BlockHeight uint64            `json:"block_height"`
	IssuedAt    time.Time         `json:"issued_at"`
	Payload     []byte            `json:"payload,omitempty"`
}

// NewSnapshot builds the read-only view of c.
func (c *Credential) NewSnapshot() *Snapshot {
	return &Snapshot{
		ID:          c.ID,
		Title:       c.Title,
		DocType:     c.DocType,
		Institution: c.Institution,
		Description: c.Description,
		Metadata:    c.Metadata,
		Status:      c.Status,
		TxRef:       c.TxRef,
		BlockHeight: c.BlockHeight,
		IssuedAt:    c.IssuedAt,
	}
}

// IssueRequest is the payload for issuing a new credential.
type IssueRequest struct {
	StudentEmail string            `json:"student_email" binding:"required,email"`
	Title        string            `json:"title"         binding:"required"`
	DocType      DocType           `json:"doc_type"      binding:"required"`
	Institution  string            `json:"institution"   binding:"required"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Document     []byte            `json:"document"      binding:"required"`
	Public       bool              `json:"public"`
}
