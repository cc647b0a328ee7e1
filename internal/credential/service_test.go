package credential_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/contentstore"
	"github.com/credanchor/credanchor/internal/credential"
	"github.com/credanchor/credanchor/internal/ledger"
	"github.com/credanchor/credanchor/internal/notify"
)

type resolverFunc func(ctx context.Context, email string) (uuid.UUID, error)

func (f resolverFunc) ResolveStudent(ctx context.Context, email string) (uuid.UUID, error) {
	return f(ctx, email)
}

type harness struct {
	store   *credential.MemoryStore
	content *contentstore.MemoryStore
	svc     *credential.Service

	studentID uuid.UUID
}

func newHarness(t *testing.T, transitionRoles []string) *harness {
	t.Helper()
	h := &harness{
		store:     credential.NewMemoryStore(),
		content:   contentstore.NewMemoryStore(),
		studentID: uuid.New(),
	}
	resolver := resolverFunc(func(_ context.Context, email string) (uuid.UUID, error) {
		if email == "student@example.edu" {
			return h.studentID, nil
		}
		return uuid.Nil, fmt.Errorf("no such student")
	})
	h.svc = credential.NewService(
		h.store, h.content, ledger.NewSimClient(50), resolver,
		notify.NewNoopBus(zap.NewNop()), transitionRoles, zap.NewNop(),
	)
	return h
}

func issueRequest() *credential.IssueRequest {
	return &credential.IssueRequest{
		StudentEmail: "student@example.edu",
		Title:        "BEng Software Engineering",
		DocType:      credential.DocDegree,
		Institution:  "Example University",
		Document:     []byte("signed degree document"),
	}
}

func TestIssue(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	issuerID := uuid.New()

	cred, err := h.svc.Issue(ctx, issuerID, issueRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if cred.OwnerID != h.studentID {
		t.Errorf("owner %s, want resolved student %s", cred.OwnerID, h.studentID)
	}
	if cred.IssuerID != issuerID {
		t.Errorf("issuer %s, want %s", cred.IssuerID, issuerID)
	}
	if cred.Status != credential.StatusIssued {
		t.Errorf("status %q, want issued", cred.Status)
	}
	if !cred.Anchored() {
		t.Error("issued credential must carry a ledger receipt")
	}

	// The stored payload must live at the recorded content address.
	if _, err := h.content.Get(ctx, cred.ContentAddress); err != nil {
		t.Errorf("payload not retrievable at %s: %v", cred.ContentAddress, err)
	}

	saved, err := h.store.GetByID(ctx, cred.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if saved.TxRef != cred.TxRef {
		t.Errorf("saved tx ref %q, want %q", saved.TxRef, cred.TxRef)
	}
}

func TestIssue_unknownStudent(t *testing.T) {
	h := newHarness(t, nil)

	req := issueRequest()
	req.StudentEmail = "nobody@example.edu"
	if _, err := h.svc.Issue(context.Background(), uuid.New(), req); err == nil {
		t.Error("issuing to an unknown student must fail")
	}
}

func TestIssue_anchorFailureSavesNothing(t *testing.T) {
	store := credential.NewMemoryStore()
	content := contentstore.NewMemoryStore()
	ownerID := uuid.New()
	resolver := resolverFunc(func(context.Context, string) (uuid.UUID, error) {
		return ownerID, nil
	})
	svc := credential.NewService(store, content, brokeLedger{}, resolver, notify.NewNoopBus(zap.NewNop()), nil, zap.NewNop())

	_, err := svc.Issue(context.Background(), uuid.New(), issueRequest())
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// No registry record may exist for a failed anchor.
	if creds, _ := store.ListByOwner(context.Background(), ownerID, 100, 0); len(creds) != 0 {
		t.Errorf("failed anchor left %d records behind", len(creds))
	}
}

func TestGet_visibility(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	issuerID := uuid.New()

	private, err := h.svc.Issue(ctx, issuerID, issueRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	pubReq := issueRequest()
	pubReq.Public = true
	pubReq.Document = []byte("public certificate")
	public, err := h.svc.Issue(ctx, issuerID, pubReq)
	if err != nil {
		t.Fatalf("Issue public: %v", err)
	}

	tests := []struct {
		name    string
		actorID uuid.UUID
		role    string
		credID  uuid.UUID
		wantErr error
	}{
		{"owner reads private", h.studentID, "student", private.ID, nil},
		{"issuer reads private", issuerID, "institution", private.ID, nil},
		{"admin reads private", uuid.New(), "admin", private.ID, nil},
		{"stranger blocked from private", uuid.New(), "verifier", private.ID, credential.ErrForbidden},
		{"stranger reads public", uuid.New(), "verifier", public.ID, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Get(ctx, tt.actorID, tt.role, tt.credID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRevoke_authority(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		role     string
		asIssuer bool
		wantErr  error
	}{
		{"issuing institution", "institution", true, nil},
		{"other institution", "institution", false, credential.ErrForbidden},
		{"admin over foreign credential", "admin", false, nil},
		{"student", "student", true, credential.ErrForbidden},
		{"verifier", "verifier", false, credential.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			issuerID := uuid.New()
			cred, err := h.svc.Issue(ctx, issuerID, issueRequest())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			actorID := uuid.New()
			if tt.asIssuer {
				actorID = issuerID
			}
			err = h.svc.Revoke(ctx, actorID, tt.role, cred.ID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Revoke() error = %v, want %v", err, tt.wantErr)
			}

			got, _ := h.store.GetByID(ctx, cred.ID)
			revoked := got.Status == credential.StatusRevoked
			if revoked != (tt.wantErr == nil) {
				t.Errorf("status %q after Revoke error %v", got.Status, err)
			}
		})
	}
}

func TestRevoke_configurableRoles(t *testing.T) {
	h := newHarness(t, []string{"admin"})
	ctx := context.Background()
	issuerID := uuid.New()

	cred, err := h.svc.Issue(ctx, issuerID, issueRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// With only admin in the transition set, even the issuer is refused.
	if err := h.svc.Revoke(ctx, issuerID, "institution", cred.ID); !errors.Is(err, credential.ErrForbidden) {
		t.Errorf("institution outside the transition set: expected ErrForbidden, got %v", err)
	}
	if err := h.svc.Revoke(ctx, uuid.New(), "admin", cred.ID); err != nil {
		t.Errorf("admin revoke: %v", err)
	}
}

func TestGetByContentAddress_prefersActive(t *testing.T) {
	store := credential.NewMemoryStore()
	ctx := context.Background()
	addr := contentstore.Address([]byte("reissued document"))

	revoked := &credential.Credential{
		OwnerID:        uuid.New(),
		IssuerID:       uuid.New(),
		Title:          "Original",
		DocType:        credential.DocCertificate,
		ContentAddress: addr,
		TxRef:          "0x01",
		Status:         credential.StatusRevoked,
	}
	if err := store.Create(ctx, revoked); err != nil {
		t.Fatalf("create revoked: %v", err)
	}
	reissued := &credential.Credential{
		OwnerID:        revoked.OwnerID,
		IssuerID:       revoked.IssuerID,
		Title:          "Reissued",
		DocType:        credential.DocCertificate,
		ContentAddress: addr,
		TxRef:          "0x02",
		Status:         credential.StatusIssued,
	}
	if err := store.Create(ctx, reissued); err != nil {
		t.Fatalf("create reissued: %v", err)
	}

	got, err := store.GetByContentAddress(ctx, addr)
	if err != nil {
		t.Fatalf("GetByContentAddress: %v", err)
	}
	if got.ID != reissued.ID {
		t.Errorf("lookup returned %q, want the non-revoked record", got.Title)
	}
}

// brokeLedger rejects every anchor with an insufficient-funds error.
type brokeLedger struct{}

func (brokeLedger) Anchor(context.Context, string, string) (*ledger.Receipt, error) {
	return nil, fmt.Errorf("anchor: %w", ledger.ErrInsufficientFunds)
}
func (brokeLedger) Resolve(context.Context, string) (*ledger.Receipt, error) {
	return nil, ledger.ErrReceiptNotFound
}
func (brokeLedger) Height(context.Context) (uint64, error) { return 0, nil }
