package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/credanchor/credanchor/internal/contentstore"
	"github.com/credanchor/credanchor/internal/credential"
	"github.com/credanchor/credanchor/internal/ledger"
	"github.com/credanchor/credanchor/internal/notify"
	"github.com/credanchor/credanchor/pkg/qrtoken"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ShareResolver maps a share-link identifier to the credential it grants
// access to. *sharelink.Manager satisfies this interface.
type ShareResolver interface {
	CredentialIDByShareID(ctx context.Context, shareID string) (uuid.UUID, error)
}

// Engine orchestrates credential verification: it resolves a request
// through one of the lookup strategies, cross-checks the ledger receipt
// against the content-addressed payload, and appends one audit record per
// attempt — hit or miss.
type Engine struct {
	creds   credential.Store
	shares  ShareResolver // nil = no share-id fallback on id/qr lookups
	ledger  ledger.Client
	content contentstore.Store
	audit   AuditLog
	bus     notify.Bus
	logger  *zap.Logger
}

// NewEngine creates a verification Engine.
func NewEngine(creds credential.Store, lc ledger.Client, content contentstore.Store, audit AuditLog, bus notify.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		creds:   creds,
		ledger:  lc,
		content: content,
		audit:   audit,
		bus:     bus,
		logger:  logger,
	}
}

// SetShareResolver configures the share-link fallback used by the id and
// qr lookup strategies.
func (e *Engine) SetShareResolver(sr ShareResolver) {
	e.shares = sr
}

// Verify resolves the request, checks ledger receipt and content
// integrity, and writes the audit record. Business misses (no credential,
// unresolvable receipt, revoked status) never surface as errors — they
// produce a well-formed invalid Result. The returned error is non-nil only
// when the caller abandoned the request or the audit record itself could
// not be written.
func (e *Engine) Verify(ctx context.Context, req *Request) (*Result, error) {
	cred, err := e.resolve(ctx, req)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	var (
		reason        Reason
		receipt       *ledger.Receipt
		confirmations uint64
	)

	switch {
	case cred == nil:
		reason = ReasonNotFound
	default:
		receipt, confirmations, reason = e.check(ctx, cred)
	}

	// An abandoned request writes no record at all; a half-written
	// attempt must never appear in the audit trail.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rec := &Record{
		VerifierID:    req.VerifierID,
		Method:        req.Method,
		Result:        reason == ReasonOK,
		Reason:        reason,
		Confirmations: confirmations,
	}
	if cred != nil {
		id := cred.ID
		rec.CredentialID = &id
		rec.TxRef = cred.TxRef
		rec.BlockHeight = cred.BlockHeight
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("record verification attempt: %w", err)
	}

	result := &Result{
		IsValid:       rec.Result,
		Reason:        reason,
		Receipt:       receipt,
		Confirmations: confirmations,
		RecordID:      rec.ID,
		VerifiedAt:    rec.VerifiedAt,
	}
	if cred != nil {
		result.Credential = cred.NewSnapshot()
	}

	e.logger.Info("verification",
		zap.String("method", string(req.Method)),
		zap.Bool("valid", result.IsValid),
		zap.String("reason", string(reason)),
		zap.String("verifier", req.VerifierID.String()),
	)
	if e.bus != nil && cred != nil {
		e.bus.Publish(ctx, notify.EventCredentialVerified, map[string]string{
			"credential_id": cred.ID.String(),
			"valid":         fmt.Sprintf("%t", result.IsValid),
			"reason":        string(reason),
		})
	}
	return result, nil
}

// resolve finds the candidate credential for the request's lookup key.
// Returns credential.ErrNotFound when every strategy misses.
func (e *Engine) resolve(ctx context.Context, req *Request) (*credential.Credential, error) {
	switch req.Method {
	case MethodDocumentHash:
		return e.creds.GetByContentAddress(ctx, req.Value)

	case MethodQR:
		kind, token, err := qrtoken.Classify(req.Value)
		if err != nil {
			return nil, credential.ErrNotFound
		}
		switch kind {
		case qrtoken.KindCredentialID:
			id, _ := uuid.Parse(token)
			return e.creds.GetByID(ctx, id)
		case qrtoken.KindTxRef:
			return e.creds.GetByTxRef(ctx, token)
		case qrtoken.KindShareID:
			return e.byShareID(ctx, token)
		default:
			// Unclassifiable tokens still get the fallback chain: some
			// wallets strip the 0x prefix from transaction references.
			if cred, err := e.creds.GetByTxRef(ctx, "0x"+token); err == nil {
				return cred, nil
			}
			return nil, credential.ErrNotFound
		}

	case MethodID:
		if id, err := uuid.Parse(req.Value); err == nil {
			if cred, err := e.creds.GetByID(ctx, id); err == nil {
				return cred, nil
			} else if !errors.Is(err, credential.ErrNotFound) {
				return nil, err
			}
		}
		return e.byShareID(ctx, req.Value)

	default:
		return nil, credential.ErrNotFound
	}
}

func (e *Engine) byShareID(ctx context.Context, shareID string) (*credential.Credential, error) {
	if e.shares == nil {
		return nil, credential.ErrNotFound
	}
	credID, err := e.shares.CredentialIDByShareID(ctx, shareID)
	if err != nil {
		return nil, credential.ErrNotFound
	}
	return e.creds.GetByID(ctx, credID)
}

// check cross-checks a resolved credential against the ledger and the
// content store. Returns the receipt, the confirmation count, and the
// reason ("" means valid).
func (e *Engine) check(ctx context.Context, cred *credential.Credential) (*ledger.Receipt, uint64, Reason) {
	receipt, err := e.ledger.Resolve(ctx, cred.TxRef)
	if err != nil {
		if errors.Is(err, ledger.ErrReceiptNotFound) {
			return nil, 0, ReasonReceiptNotFound
		}
		e.logger.Warn("ledger resolve failed", zap.String("tx_ref", cred.TxRef), zap.Error(err))
		return nil, 0, ReasonLedgerUnavailable
	}

	// Confirmations are recomputed against the live chain height on
	// every call; the chain keeps advancing underneath us.
	height, err := e.ledger.Height(ctx)
	if err != nil {
		e.logger.Warn("ledger height failed", zap.Error(err))
		return receipt, 0, ReasonLedgerUnavailable
	}
	confirmations := ledger.Confirmations(height, receipt)

	if _, err := e.content.Get(ctx, cred.ContentAddress); err != nil {
		if errors.Is(err, contentstore.ErrCorruptedContent) {
			e.logger.Error("content integrity check failed",
				zap.String("credential_id", cred.ID.String()),
				zap.String("content_address", cred.ContentAddress),
			)
			return receipt, confirmations, ReasonContentCorrupted
		}
		if errors.Is(err, contentstore.ErrNotFound) {
			return receipt, confirmations, ReasonContentMissing
		}
		return receipt, confirmations, ReasonLedgerUnavailable
	}

	// Revocation is a registry-side fact: the receipt above may still
	// resolve, but a revoked credential is invalid forever after.
	if cred.Status == credential.StatusRevoked {
		return receipt, confirmations, ReasonRevoked
	}

	return receipt, confirmations, ReasonOK
}

// History returns a page of the verifier's audit trail.
func (e *Engine) History(ctx context.Context, verifierID uuid.UUID, page, limit int) (*Page, error) {
	return e.audit.ListByVerifier(ctx, verifierID, page, limit)
}

// Report assembles the data for a verification report: the record plus
// the credential it covered, if any. Only the verifier who produced the
// record may read it.
func (e *Engine) Report(ctx context.Context, verifierID, recordID uuid.UUID) (*Record, *credential.Snapshot, error) {
	rec, err := e.audit.Get(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	if rec.VerifierID != verifierID {
		return nil, nil, ErrRecordNotFound
	}

	var snap *credential.Snapshot
	if rec.CredentialID != nil {
		if cred, err := e.creds.GetByID(ctx, *rec.CredentialID); err == nil {
			snap = cred.NewSnapshot()
		}
	}
	return rec, snap, nil
}
