package sharelink

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/credanchor/credanchor/internal/contentstore"
	"github.com/credanchor/credanchor/internal/credential"
	"github.com/credanchor/credanchor/internal/email"
	"github.com/credanchor/credanchor/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// casRetries bounds the increment retry loop when another process races
// this one on the same link.
const casRetries = 3

// CredentialReader is the credential lookup interface consumed by Manager.
// credential.Store satisfies it.
type CredentialReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*credential.Credential, error)
}

// Manager issues and validates share links. The access sequence for each
// link runs as a single serialized unit: a per-link mutex covers the
// in-process read-check-increment-check window, and the store's guarded
// increment covers races with other processes.
type Manager struct {
	store   Store
	creds   CredentialReader
	content contentstore.Store // nil = snapshots never carry the payload
	mail    email.Sender       // nil = notify_email requests are ignored
	bus     notify.Bus
	baseURL string
	locks   lockTable
	logger  *zap.Logger
}

// NewManager creates a share-link Manager. baseURL is the public frontend
// base used to build shareable URLs.
func NewManager(store Store, creds CredentialReader, bus notify.Bus, baseURL string, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		creds:   creds,
		bus:     bus,
		baseURL: baseURL,
		logger:  logger,
	}
}

// SetContentStore enables payload delivery on snapshots for links with
// AllowDownload set.
func (m *Manager) SetContentStore(cs contentstore.Store) {
	m.content = cs
}

// SetEmailSender enables mailing freshly created links to a recipient
// named in the create request.
func (m *Manager) SetEmailSender(s email.Sender) {
	m.mail = s
}

// Create issues a new share link for a credential the actor owns.
func (m *Manager) Create(ctx context.Context, actorID uuid.UUID, credentialID uuid.UUID, req *CreateRequest) (*ShareLink, error) {
	cred, err := m.creds.GetByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.OwnerID != actorID {
		return nil, ErrForbidden
	}
	if req.MaxViews != nil && *req.MaxViews <= 0 {
		return nil, fmt.Errorf("max_views must be positive")
	}

	settings := Settings{
		OneTimeUse:    req.OneTimeUse,
		AllowDownload: req.AllowDownload == nil || *req.AllowDownload,
		MaxViews:      req.MaxViews,
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		settings.RequiresPassword = true
		settings.PasswordHash = string(hash)
	}

	shareID, err := generateShareID()
	if err != nil {
		return nil, fmt.Errorf("generate share id: %w", err)
	}

	link := &ShareLink{
		CredentialID: credentialID,
		CreatedBy:    actorID,
		ShareID:      shareID,
		Link:         m.baseURL + "/verify/" + shareID,
		ExpiresAt:    req.ExpiresAt,
		Active:       true,
		Settings:     settings,
	}
	if err := m.store.Create(ctx, link); err != nil {
		return nil, err
	}

	m.logger.Info("share link created",
		zap.String("share_id", shareID),
		zap.String("credential_id", credentialID.String()),
		zap.Bool("one_time", settings.OneTimeUse),
	)
	m.bus.Publish(ctx, notify.EventShareLinkCreated, map[string]string{
		"share_id":      shareID,
		"credential_id": credentialID.String(),
	})

	if req.NotifyEmail != "" && m.mail != nil {
		notice := email.ShareNotice{
			RecipientEmail:  req.NotifyEmail,
			CredentialTitle: cred.Title,
			Institution:     cred.Institution,
			Link:            link.Link,
			Password:        settings.RequiresPassword,
			ExpiresAt:       link.ExpiresAt,
		}
		// Best effort: the link exists whether or not the mail lands.
		go func() {
			if err := email.SendShareNotice(context.WithoutCancel(ctx), m.mail, notice); err != nil {
				m.logger.Warn("share link notice",
					zap.String("share_id", shareID),
					zap.Error(err),
				)
			}
		}()
	}
	return link, nil
}

// Access runs the grant-consumption sequence for one link and returns a
// read-only snapshot of the credential it references.
//
// The sequence is serialized per link. Failed password checks consume no
// view; a consumed view that reaches the link's budget permanently
// deactivates it. Concurrent calls can never collectively push ViewCount
// past MaxViews.
func (m *Manager) Access(ctx context.Context, shareID, password string) (*credential.Snapshot, error) {
	unlock := m.locks.acquire(shareID)
	defer unlock()

	var link *ShareLink
	for attempt := 0; ; attempt++ {
		var err error
		link, err = m.store.GetByShareID(ctx, shareID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		if !link.Active {
			if link.expiredAt(now) {
				return nil, ErrExpired
			}
			return nil, ErrExhausted
		}
		if link.expiredAt(now) {
			if err := m.store.Deactivate(ctx, shareID); err != nil {
				m.logger.Warn("deactivate expired link", zap.String("share_id", shareID), zap.Error(err))
			}
			return nil, ErrExpired
		}

		// Password gate sits before the increment: a wrong or missing
		// password must not consume a view.
		if link.Settings.RequiresPassword {
			if password == "" {
				return nil, ErrInvalidPassword
			}
			if err := bcrypt.CompareHashAndPassword([]byte(link.Settings.PasswordHash), []byte(password)); err != nil {
				return nil, ErrInvalidPassword
			}
		}

		ok, err := m.store.IncrementViews(ctx, shareID, link.ViewCount, now)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		// Another process advanced the count first; re-read and re-check
		// the limits against the fresh state.
		if attempt >= casRetries {
			return nil, ErrExhausted
		}
	}

	viewCount := link.ViewCount + 1
	if link.exhaustedBy(viewCount) {
		if err := m.store.Deactivate(ctx, shareID); err != nil {
			m.logger.Warn("deactivate exhausted link", zap.String("share_id", shareID), zap.Error(err))
		}
	}

	cred, err := m.creds.GetByID(ctx, link.CredentialID)
	if err != nil {
		return nil, err
	}
	snap := cred.NewSnapshot()
	if link.Settings.AllowDownload && m.content != nil {
		payload, err := m.content.Get(ctx, cred.ContentAddress)
		if err != nil {
			m.logger.Warn("share link payload fetch failed",
				zap.String("share_id", shareID),
				zap.Error(err),
			)
		} else {
			snap.Payload = payload
		}
	}

	m.bus.Publish(ctx, notify.EventShareLinkAccessed, map[string]string{
		"share_id":      shareID,
		"credential_id": link.CredentialID.String(),
		"view":          fmt.Sprintf("%d", viewCount),
	})
	return snap, nil
}

// CredentialIDByShareID resolves a share identifier to its credential.
// Used by the verification engine's id/qr fallback chain; it does not
// consume a view.
func (m *Manager) CredentialIDByShareID(ctx context.Context, shareID string) (uuid.UUID, error) {
	link, err := m.store.GetByShareID(ctx, shareID)
	if err != nil {
		return uuid.Nil, err
	}
	return link.CredentialID, nil
}

// ListForCredential returns the share links issued for a credential the
// actor owns.
func (m *Manager) ListForCredential(ctx context.Context, actorID, credentialID uuid.UUID) ([]*ShareLink, error) {
	cred, err := m.creds.GetByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.OwnerID != actorID {
		return nil, ErrForbidden
	}
	return m.store.ListByCredential(ctx, credentialID.String())
}

// DeactivateExpired sweeps time-expired links. Called from a background
// ticker; links caught here would also be caught lazily on access.
func (m *Manager) DeactivateExpired(ctx context.Context) (int, error) {
	return m.store.DeactivateExpired(ctx, time.Now().UTC())
}

// generateShareID returns "share_" + 16 random bytes in hex.
func generateShareID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "share_" + hex.EncodeToString(buf), nil
}

// lockTable hands out one mutex per share identifier, reference-counted
// so idle entries do not accumulate.
type lockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// acquire locks the per-key mutex and returns the matching release func.
func (t *lockTable) acquire(key string) func() {
	t.mu.Lock()
	if t.entries == nil {
		t.entries = make(map[string]*lockEntry)
	}
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{}
		t.entries[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}
