package webhooks_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/credanchor/credanchor/internal/notify"
	"github.com/credanchor/credanchor/internal/webhooks"
)

func TestSubscribeAndList(t *testing.T) {
	svc := webhooks.NewService(webhooks.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	sub, err := svc.Subscribe(ctx, userID, &webhooks.CreateSubscriptionRequest{
		URL:    "https://consumer.example.edu/hook",
		Events: []string{notify.EventCredentialIssued},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if sub.Secret == "" {
		t.Error("subscription should carry a generated secret")
	}
	if !sub.Active {
		t.Error("new subscription should be active")
	}

	subs, err := svc.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("expected 1 subscription, got %d", len(subs))
	}
}

func TestUnsubscribe_ownerOnly(t *testing.T) {
	svc := webhooks.NewService(webhooks.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	sub, err := svc.Subscribe(ctx, userID, &webhooks.CreateSubscriptionRequest{
		URL:    "https://consumer.example.edu/hook",
		Events: []string{notify.EventCredentialRevoked},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := svc.Unsubscribe(ctx, uuid.New(), sub.ID); !errors.Is(err, webhooks.ErrForbidden) {
		t.Errorf("foreign unsubscribe: expected ErrForbidden, got %v", err)
	}
	if err := svc.Unsubscribe(ctx, userID, sub.ID); err != nil {
		t.Errorf("owner unsubscribe: %v", err)
	}
	if err := svc.Unsubscribe(ctx, userID, sub.ID); !errors.Is(err, webhooks.ErrNotFound) {
		t.Errorf("double unsubscribe: expected ErrNotFound, got %v", err)
	}
}

func TestPublish_deliversSignedEvent(t *testing.T) {
	type received struct {
		body      []byte
		signature string
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{body: body, signature: r.Header.Get("X-CredAnchor-Signature")}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := webhooks.NewMemoryStore()
	svc := webhooks.NewService(store, zap.NewNop())
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, uuid.New(), &webhooks.CreateSubscriptionRequest{
		URL:    srv.URL,
		Events: []string{notify.EventCredentialIssued},
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// An event nobody listens for must not be delivered.
	svc.Publish(ctx, notify.EventShareLinkAccessed, map[string]string{"share_id": "share_x"})

	credID := uuid.NewString()
	svc.Publish(ctx, notify.EventCredentialIssued, map[string]string{"credential_id": credID})

	select {
	case r := <-got:
		mac := hmac.New(sha256.New, []byte(sub.Secret))
		mac.Write(r.body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if r.signature != want {
			t.Errorf("signature %q, want %q", r.signature, want)
		}

		var event webhooks.Event
		if err := json.Unmarshal(r.body, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event.Type != notify.EventCredentialIssued {
			t.Errorf("event type %q", event.Type)
		}
		if event.Payload["credential_id"] != credID {
			t.Errorf("payload %v", event.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery arrived")
	}

	select {
	case r := <-got:
		t.Fatalf("unexpected extra delivery: %s", r.body)
	case <-time.After(100 * time.Millisecond):
	}

	// Exactly one successful delivery attempt is on record.
	deadline := time.Now().Add(2 * time.Second)
	for {
		deliveries := store.Deliveries()
		if len(deliveries) == 1 {
			if !deliveries[0].Success || deliveries[0].StatusCode != http.StatusOK {
				t.Errorf("unexpected delivery record %+v", deliveries[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 delivery record, got %d", len(deliveries))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
