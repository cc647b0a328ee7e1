package sharelink_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/contentstore"
	"github.com/credanchor/credanchor/internal/credential"
	"github.com/credanchor/credanchor/internal/notify"
	"github.com/credanchor/credanchor/internal/sharelink"
)

const baseURL = "https://registry.example.edu"

func setup(t *testing.T) (*sharelink.Manager, *sharelink.MemoryStore, *credential.Credential) {
	t.Helper()

	creds := credential.NewMemoryStore()
	cred := &credential.Credential{
		OwnerID:        uuid.New(),
		IssuerID:       uuid.New(),
		Title:          "MSc Distributed Systems",
		DocType:        credential.DocDegree,
		ContentAddress: contentstore.Address([]byte("doc")),
		TxRef:          "0xfeed",
		BlockHeight:    12,
		Status:         credential.StatusIssued,
	}
	if err := creds.Create(context.Background(), cred); err != nil {
		t.Fatalf("create credential: %v", err)
	}

	store := sharelink.NewMemoryStore()
	mgr := sharelink.NewManager(store, creds, notify.NewNoopBus(zap.NewNop()), baseURL, zap.NewNop())
	return mgr, store, cred
}

func TestCreate_ownerOnly(t *testing.T) {
	mgr, _, cred := setup(t)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, uuid.New(), cred.ID, &sharelink.CreateRequest{}); !errors.Is(err, sharelink.ErrForbidden) {
		t.Errorf("non-owner create: expected ErrForbidden, got %v", err)
	}

	link, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{})
	if err != nil {
		t.Fatalf("owner create: %v", err)
	}
	if !strings.HasPrefix(link.ShareID, "share_") {
		t.Errorf("share id should carry the share_ prefix, got %q", link.ShareID)
	}
	if link.Link != baseURL+"/verify/"+link.ShareID {
		t.Errorf("unexpected link url %q", link.Link)
	}
	if !link.Active || link.ViewCount != 0 {
		t.Errorf("fresh link should be active with zero views: %+v", link)
	}
}

func TestAccess_countsViews(t *testing.T) {
	mgr, store, cred := setup(t)
	ctx := context.Background()

	link, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := mgr.Access(ctx, link.ShareID, "")
	if err != nil {
		t.Fatalf("Access: %v", err)
	}
	if snap.ID != cred.ID {
		t.Errorf("snapshot references wrong credential: %s", snap.ID)
	}

	got, err := store.GetByShareID(ctx, link.ShareID)
	if err != nil {
		t.Fatalf("reload link: %v", err)
	}
	if got.ViewCount != 1 {
		t.Errorf("expected 1 view, got %d", got.ViewCount)
	}
	if got.LastViewedAt == nil {
		t.Error("LastViewedAt should be set after access")
	}
}

func TestAccess_passwordGate(t *testing.T) {
	mgr, store, cred := setup(t)
	ctx := context.Background()

	link, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{Password: "hunter2"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := mgr.Access(ctx, link.ShareID, ""); !errors.Is(err, sharelink.ErrInvalidPassword) {
		t.Errorf("missing password: expected ErrInvalidPassword, got %v", err)
	}
	if _, err := mgr.Access(ctx, link.ShareID, "wrong"); !errors.Is(err, sharelink.ErrInvalidPassword) {
		t.Errorf("wrong password: expected ErrInvalidPassword, got %v", err)
	}

	// Failed attempts must not consume views.
	got, _ := store.GetByShareID(ctx, link.ShareID)
	if got.ViewCount != 0 {
		t.Errorf("failed password attempts consumed %d views", got.ViewCount)
	}

	if _, err := mgr.Access(ctx, link.ShareID, "hunter2"); err != nil {
		t.Errorf("correct password: %v", err)
	}
}

func TestAccess_expiredLazyDeactivation(t *testing.T) {
	mgr, store, cred := setup(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	link, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{ExpiresAt: &past})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := mgr.Access(ctx, link.ShareID, ""); !errors.Is(err, sharelink.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	got, _ := store.GetByShareID(ctx, link.ShareID)
	if got.Active {
		t.Error("access past the expiry should deactivate the link")
	}
	if got.ViewCount != 0 {
		t.Errorf("expired access consumed %d views", got.ViewCount)
	}

	// The deactivated link keeps reporting expiry, never exhaustion.
	if _, err := mgr.Access(ctx, link.ShareID, ""); !errors.Is(err, sharelink.ErrExpired) {
		t.Errorf("second access: expected ErrExpired, got %v", err)
	}
}

func TestAccess_oneTimeUse(t *testing.T) {
	mgr, store, cred := setup(t)
	ctx := context.Background()

	link, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{OneTimeUse: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := mgr.Access(ctx, link.ShareID, ""); err != nil {
		t.Fatalf("first access: %v", err)
	}

	got, _ := store.GetByShareID(ctx, link.ShareID)
	if got.Active {
		t.Error("one-time link should deactivate after its single use")
	}

	if _, err := mgr.Access(ctx, link.ShareID, ""); !errors.Is(err, sharelink.ErrExhausted) {
		t.Errorf("second access: expected ErrExhausted, got %v", err)
	}
}

func TestAccess_maxViewsUnderConcurrency(t *testing.T) {
	mgr, store, cred := setup(t)
	ctx := context.Background()

	maxViews := 5
	link, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{MaxViews: &maxViews})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		granted   int
		exhausted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Access(ctx, link.ShareID, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted++
			case errors.Is(err, sharelink.ErrExhausted):
				exhausted++
			default:
				t.Errorf("unexpected access error: %v", err)
			}
		}()
	}
	wg.Wait()

	if granted != maxViews {
		t.Errorf("granted %d accesses, want exactly %d", granted, maxViews)
	}
	if granted+exhausted != callers {
		t.Errorf("granted %d + exhausted %d != %d callers", granted, exhausted, callers)
	}

	got, _ := store.GetByShareID(ctx, link.ShareID)
	if got.ViewCount != maxViews {
		t.Errorf("view count %d exceeds budget %d", got.ViewCount, maxViews)
	}
	if got.Active {
		t.Error("exhausted link should be deactivated")
	}
}

func TestAccess_payloadOnAllowDownload(t *testing.T) {
	creds := credential.NewMemoryStore()
	content := contentstore.NewMemoryStore()
	ctx := context.Background()

	payload := []byte("full transcript pdf bytes")
	addr, err := content.Put(ctx, payload)
	if err != nil {
		t.Fatalf("content put: %v", err)
	}
	cred := &credential.Credential{
		OwnerID:        uuid.New(),
		IssuerID:       uuid.New(),
		Title:          "Transcript",
		DocType:        credential.DocTranscript,
		ContentAddress: addr,
		TxRef:          "0xbeef",
		Status:         credential.StatusIssued,
	}
	if err := creds.Create(ctx, cred); err != nil {
		t.Fatalf("create credential: %v", err)
	}

	mgr := sharelink.NewManager(sharelink.NewMemoryStore(), creds, notify.NewNoopBus(zap.NewNop()), baseURL, zap.NewNop())
	mgr.SetContentStore(content)

	noDownload := false
	withPayload, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	viewOnly, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{AllowDownload: &noDownload})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	snap, err := mgr.Access(ctx, withPayload.ShareID, "")
	if err != nil {
		t.Fatalf("Access: %v", err)
	}
	if string(snap.Payload) != string(payload) {
		t.Error("download-enabled link should carry the payload")
	}

	snap, err = mgr.Access(ctx, viewOnly.ShareID, "")
	if err != nil {
		t.Fatalf("Access: %v", err)
	}
	if snap.Payload != nil {
		t.Error("view-only link must not carry the payload")
	}
}

func TestCredentialIDByShareID_noViewConsumed(t *testing.T) {
	mgr, store, cred := setup(t)
	ctx := context.Background()

	link, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := mgr.CredentialIDByShareID(ctx, link.ShareID)
	if err != nil {
		t.Fatalf("CredentialIDByShareID: %v", err)
	}
	if id != cred.ID {
		t.Errorf("resolved %s, want %s", id, cred.ID)
	}

	got, _ := store.GetByShareID(ctx, link.ShareID)
	if got.ViewCount != 0 {
		t.Errorf("resolution consumed %d views", got.ViewCount)
	}
}

func TestDeactivateExpired_sweep(t *testing.T) {
	mgr, store, cred := setup(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	expired, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{ExpiresAt: &past})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	alive, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{ExpiresAt: &future})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := mgr.DeactivateExpired(ctx)
	if err != nil {
		t.Fatalf("DeactivateExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d links, want 1", n)
	}

	if got, _ := store.GetByShareID(ctx, expired.ShareID); got.Active {
		t.Error("expired link should be inactive after the sweep")
	}
	if got, _ := store.GetByShareID(ctx, alive.ShareID); !got.Active {
		t.Error("unexpired link must survive the sweep")
	}
}

func TestListForCredential_ownerOnly(t *testing.T) {
	mgr, _, cred := setup(t)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, cred.OwnerID, cred.ID, &sharelink.CreateRequest{}); err != nil {
		t.Fatalf("create: %v", err)
	}

	links, err := mgr.ListForCredential(ctx, cred.OwnerID, cred.ID)
	if err != nil {
		t.Fatalf("ListForCredential: %v", err)
	}
	if len(links) != 1 {
		t.Errorf("expected 1 link, got %d", len(links))
	}

	if _, err := mgr.ListForCredential(ctx, uuid.New(), cred.ID); !errors.Is(err, sharelink.ErrForbidden) {
		t.Errorf("non-owner list: expected ErrForbidden, got %v", err)
	}
}
