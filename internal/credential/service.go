package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/credanchor/credanchor/internal/contentstore"
	"github.com/credanchor/credanchor/internal/ledger"
	"github.com/credanchor/credanchor/internal/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrForbidden is returned when an actor lacks authority for a status
// transition.
var ErrForbidden = fmt.Errorf("not authorized to modify this credential")

// Store is the persistence interface consumed by Service.
// Both *Repository and *MemoryStore satisfy it.
type Store interface {
	Create(ctx context.Context, c *Credential) error
	GetByID(ctx context.Context, id uuid.UUID) (*Credential, error)
	GetByContentAddress(ctx context.Context, address string) (*Credential, error)
	GetByTxRef(ctx context.Context, txRef string) (*Credential, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Credential, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// SubjectResolver maps a student email to a registry user ID.
// *users.Service satisfies this interface.
type SubjectResolver interface {
	ResolveStudent(ctx context.Context, email string) (uuid.UUID, error)
}

// Service implements credential issuance and lifecycle management.
type Service struct {
	store    Store
	content  contentstore.Store
	ledger   ledger.Client
	subjects SubjectResolver
	bus      notify.Bus
	// transitionRoles lists the roles allowed to change a credential's
	// status. Configuration, not hard-coded: the permitted role set has
	// shifted across deployments.
	transitionRoles map[string]bool
	logger          *zap.Logger
}

// NewService creates a credential Service. transitionRoles defaults to
// {institution, admin} when empty.
func NewService(store Store, content contentstore.Store, lc ledger.Client, subjects SubjectResolver, bus notify.Bus, transitionRoles []string, logger *zap.Logger) *Service {
	if len(transitionRoles) == 0 {
		transitionRoles = []string{"institution", "admin"}
	}
	allowed := make(map[string]bool, len(transitionRoles))
	for _, r := range transitionRoles {
		allowed[r] = true
	}
	return &Service{
		store:           store,
		content:         content,
		ledger:          lc,
		subjects:        subjects,
		bus:             bus,
		transitionRoles: allowed,
		logger:          logger,
	}
}

// document is the payload stored in the content store for an issuance.
type document struct {
	Title       string            `json:"title"`
	DocType     DocType           `json:"doc_type"`
	Institution string            `json:"institution"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IssuedAt    time.Time         `json:"issued_at"`
	Document    []byte            `json:"document"`
}

// Issue stores the credential document, anchors its content address on
// the ledger, and persists the registry record. The record is written
// only after both the payload and the receipt exist, so a stored
// credential always has a resolvable anchor at creation time.
func (s *Service) Issue(ctx context.Context, issuerID uuid.UUID, req *IssueRequest) (*Credential, error) {
	ownerID, err := s.subjects.ResolveStudent(ctx, req.StudentEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve student: %w", err)
	}

	issuedAt := time.Now().UTC()
	payload, err := json.Marshal(document{
		Title:       req.Title,
		DocType:     req.DocType,
		Institution: req.Institution,
		Description: req.Description,
		Metadata:    req.Metadata,
		IssuedAt:    issuedAt,
		Document:    req.Document,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	address, err := s.content.Put(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	receipt, err := s.ledger.Anchor(ctx, address, ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("anchor credential: %w", err)
	}

	cred := &Credential{
		OwnerID:        ownerID,
		IssuerID:       issuerID,
		Title:          req.Title,
		DocType:        req.DocType,
		Institution:    req.Institution,
		Description:    req.Description,
		ContentAddress: address,
		TxRef:          receipt.TxRef,
		BlockHeight:    receipt.BlockHeight,
		Metadata:       req.Metadata,
		Status:         StatusIssued,
		Public:         req.Public,
		IssuedAt:       issuedAt,
	}
	if err := s.store.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	s.logger.Info("credential issued",
		zap.String("credential_id", cred.ID.String()),
		zap.String("tx_ref", cred.TxRef),
		zap.Uint64("block_height", cred.BlockHeight),
	)
	s.bus.Publish(ctx, notify.EventCredentialIssued, map[string]string{
		"credential_id": cred.ID.String(),
		"owner_id":      ownerID.String(),
		"tx_ref":        cred.TxRef,
	})
	return cred, nil
}

// Get returns a credential, enforcing that non-public credentials are
// visible only to their owner, their issuer, or an admin.
func (s *Service) Get(ctx context.Context, actorID uuid.UUID, actorRole string, id uuid.UUID) (*Credential, error) {
	cred, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cred.Public && cred.OwnerID != actorID && cred.IssuerID != actorID && actorRole != "admin" {
		return nil, ErrForbidden
	}
	return cred, nil
}

// ListOwned returns the actor's own credentials.
func (s *Service) ListOwned(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Credential, error) {
	return s.store.ListByOwner(ctx, ownerID, limit, offset)
}

// Revoke transitions a credential to revoked. Only the issuing
// institution or a role in the configured transition set may revoke.
// Revocation is permanent and registry-side: the ledger receipt stays
// resolvable, but every subsequent verification reports invalid.
func (s *Service) Revoke(ctx context.Context, actorID uuid.UUID, actorRole string, id uuid.UUID) error {
	return s.transition(ctx, actorID, actorRole, id, StatusRevoked)
}

// SetStatus applies an arbitrary status transition under the same
// authority rules as Revoke.
func (s *Service) SetStatus(ctx context.Context, actorID uuid.UUID, actorRole string, id uuid.UUID, status Status) error {
	return s.transition(ctx, actorID, actorRole, id, status)
}

func (s *Service) transition(ctx context.Context, actorID uuid.UUID, actorRole string, id uuid.UUID, status Status) error {
	cred, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !s.transitionRoles[actorRole] {
		return ErrForbidden
	}
	// Institutions may only touch credentials they issued; admins may
	// touch any.
	if actorRole != "admin" && cred.IssuerID != actorID {
		return ErrForbidden
	}

	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return err
	}

	s.logger.Info("credential status changed",
		zap.String("credential_id", id.String()),
		zap.String("from", string(cred.Status)),
		zap.String("to", string(status)),
		zap.String("actor", actorID.String()),
	)
	if status == StatusRevoked {
		s.bus.Publish(ctx, notify.EventCredentialRevoked, map[string]string{
			"credential_id": id.String(),
			"tx_ref":        cred.TxRef,
		})
	}
	return nil
}
