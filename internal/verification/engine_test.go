package verification_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/contentstore"
	"github.com/credanchor/credanchor/internal/credential"
	"github.com/credanchor/credanchor/internal/ledger"
	"github.com/credanchor/credanchor/internal/notify"
	"github.com/credanchor/credanchor/internal/verification"
)

type fixture struct {
	creds   *credential.MemoryStore
	content *contentstore.MemoryStore
	chain   *ledger.SimClient
	audit   *verification.MemoryAuditLog
	engine  *verification.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		creds:   credential.NewMemoryStore(),
		content: contentstore.NewMemoryStore(),
		chain:   ledger.NewSimClient(100),
		audit:   verification.NewMemoryAuditLog(),
	}
	f.engine = verification.NewEngine(
		f.creds, f.chain, f.content, f.audit,
		notify.NewNoopBus(zap.NewNop()), zap.NewNop(),
	)
	return f
}

// anchor stores a payload, anchors it, and saves the credential record.
func (f *fixture) anchor(t *testing.T, payload []byte, status credential.Status) *credential.Credential {
	t.Helper()
	ctx := context.Background()

	addr, err := f.content.Put(ctx, payload)
	if err != nil {
		t.Fatalf("content put: %v", err)
	}
	receipt, err := f.chain.Anchor(ctx, addr, "owner")
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}

	cred := &credential.Credential{
		OwnerID:        uuid.New(),
		IssuerID:       uuid.New(),
		Title:          "BSc Testing",
		DocType:        credential.DocDegree,
		ContentAddress: addr,
		TxRef:          receipt.TxRef,
		BlockHeight:    receipt.BlockHeight,
		Status:         status,
	}
	if err := f.creds.Create(ctx, cred); err != nil {
		t.Fatalf("create credential: %v", err)
	}
	return cred
}

func TestVerify_byDocumentHash_valid(t *testing.T) {
	f := newFixture(t)
	payload := []byte("diploma payload")
	cred := f.anchor(t, payload, credential.StatusIssued)
	f.chain.AdvanceBlocks(5)

	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodDocumentHash,
		Value:      contentstore.Address(payload),
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if !result.IsValid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
	if result.Credential == nil || result.Credential.ID != cred.ID {
		t.Error("result should carry the resolved credential snapshot")
	}
	if result.Confirmations != 5 {
		t.Errorf("expected 5 confirmations, got %d", result.Confirmations)
	}
	if result.RecordID == uuid.Nil {
		t.Error("result should reference the audit record")
	}
	if f.audit.Len() != 1 {
		t.Errorf("expected exactly one audit record, got %d", f.audit.Len())
	}
}

func TestVerify_byID_valid(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("by id"), credential.StatusIssued)

	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodID,
		Value:      cred.ID.String(),
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.IsValid {
		t.Errorf("expected valid, got reason %q", result.Reason)
	}
}

func TestVerify_byQR_txRef(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("qr payload"), credential.StatusIssued)
	f.chain.AdvanceBlocks(3)

	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodQR,
		Value:      cred.TxRef,
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.IsValid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
	if result.Confirmations != 3 {
		t.Errorf("confirmations must be recomputed per call: got %d, want 3", result.Confirmations)
	}
}

func TestVerify_notFound_stillRecorded(t *testing.T) {
	f := newFixture(t)

	verifierID := uuid.New()
	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodDocumentHash,
		Value:      contentstore.Address([]byte("never anchored")),
		VerifierID: verifierID,
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if result.IsValid {
		t.Error("unknown document must be invalid")
	}
	if result.Reason != verification.ReasonNotFound {
		t.Errorf("expected not_found, got %q", result.Reason)
	}
	if f.audit.Len() != 1 {
		t.Errorf("a miss must still produce an audit record, got %d", f.audit.Len())
	}

	page, err := f.engine.History(context.Background(), verifierID, 1, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page.Records) != 1 || page.Records[0].CredentialID != nil {
		t.Errorf("miss record should have nil credential id: %+v", page.Records)
	}
}

func TestVerify_revoked(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("revoked doc"), credential.StatusRevoked)

	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodID,
		Value:      cred.ID.String(),
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if result.IsValid {
		t.Error("revoked credential must verify as invalid")
	}
	if result.Reason != verification.ReasonRevoked {
		t.Errorf("expected revoked, got %q", result.Reason)
	}
	// The receipt still resolves; revocation is a registry-side fact.
	if result.Receipt == nil {
		t.Error("revoked credential should still return its receipt")
	}
}

func TestVerify_receiptMissing(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("dropped anchor"), credential.StatusIssued)
	f.chain.Drop(cred.TxRef)

	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodID,
		Value:      cred.ID.String(),
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.IsValid || result.Reason != verification.ReasonReceiptNotFound {
		t.Errorf("expected receipt_not_found, got valid=%t reason=%q", result.IsValid, result.Reason)
	}
}

func TestVerify_corruptedContent(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("pristine"), credential.StatusIssued)
	f.content.Corrupt(cred.ContentAddress, []byte("altered"))

	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodID,
		Value:      cred.ID.String(),
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.IsValid || result.Reason != verification.ReasonContentCorrupted {
		t.Errorf("expected content_corrupted, got valid=%t reason=%q", result.IsValid, result.Reason)
	}
}

func TestVerify_ledgerOutage(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("outage doc"), credential.StatusIssued)

	// A downed RPC node yields ErrUnavailable on every call.
	down := &downLedger{}
	engine := verification.NewEngine(f.creds, down, f.content, f.audit, notify.NewNoopBus(zap.NewNop()), zap.NewNop())

	result, err := engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodID,
		Value:      cred.ID.String(),
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.IsValid {
		t.Error("outage must not produce a valid result")
	}
	if result.Reason != verification.ReasonLedgerUnavailable {
		t.Errorf("expected ledger_unavailable, got %q", result.Reason)
	}
	if !result.Reason.Retryable() {
		t.Error("ledger_unavailable should be retryable")
	}
}

func TestVerify_cancelledWritesNoRecord(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("cancel doc"), credential.StatusIssued)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Verify(ctx, &verification.Request{
		Method:     verification.MethodID,
		Value:      cred.ID.String(),
		VerifierID: uuid.New(),
	})
	if err == nil {
		t.Fatal("expected an error for a cancelled request")
	}
	if f.audit.Len() != 0 {
		t.Errorf("abandoned request must write no audit record, got %d", f.audit.Len())
	}
}

func TestVerify_shareIDFallback(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("shared doc"), credential.StatusIssued)

	f.engine.SetShareResolver(shareResolverFunc(func(_ context.Context, shareID string) (uuid.UUID, error) {
		if shareID == "share_abc123" {
			return cred.ID, nil
		}
		return uuid.Nil, credential.ErrNotFound
	}))

	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodQR,
		Value:      "share_abc123",
		VerifierID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.IsValid {
		t.Errorf("share-id lookup should resolve the credential, got reason %q", result.Reason)
	}
}

func TestReport_ownRecordsOnly(t *testing.T) {
	f := newFixture(t)
	cred := f.anchor(t, []byte("report doc"), credential.StatusIssued)

	verifierID := uuid.New()
	result, err := f.engine.Verify(context.Background(), &verification.Request{
		Method:     verification.MethodID,
		Value:      cred.ID.String(),
		VerifierID: verifierID,
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	rec, snap, err := f.engine.Report(context.Background(), verifierID, result.RecordID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if rec.ID != result.RecordID || snap == nil {
		t.Error("report should return the record and the credential snapshot")
	}

	if _, _, err := f.engine.Report(context.Background(), uuid.New(), result.RecordID); err == nil {
		t.Error("another verifier must not read someone else's record")
	}
}

// downLedger simulates a node outage.
type downLedger struct{}

func (downLedger) Anchor(context.Context, string, string) (*ledger.Receipt, error) {
	return nil, ledger.ErrUnavailable
}
func (downLedger) Resolve(context.Context, string) (*ledger.Receipt, error) {
	return nil, ledger.ErrUnavailable
}
func (downLedger) Height(context.Context) (uint64, error) {
	return 0, ledger.ErrUnavailable
}

type shareResolverFunc func(ctx context.Context, shareID string) (uuid.UUID, error)

func (f shareResolverFunc) CredentialIDByShareID(ctx context.Context, shareID string) (uuid.UUID, error) {
	return f(ctx, shareID)
}
