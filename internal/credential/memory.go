package credential

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory credential store with the same lookup
// semantics as Repository. For testing and development deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[uuid.UUID]*Credential
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[uuid.UUID]*Credential)}
}

// Create inserts a new credential. Sets ID, CreatedAt, UpdatedAt.
func (s *MemoryStore) Create(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.IssuedAt.IsZero() {
		c.IssuedAt = now
	}
	if c.Status == "" {
		c.Status = StatusIssued
	}

	cp := *c
	s.creds[c.ID] = &cp
	return nil
}

// GetByID retrieves a credential by its UUID.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetByContentAddress retrieves the most recently issued, non-revoked
// credential whose payload hashes to address.
func (s *MemoryStore) GetByContentAddress(_ context.Context, address string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*Credential
	for _, c := range s.creds {
		if c.ContentAddress == address {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	// Non-revoked first, then newest issuance.
	sort.Slice(matches, func(i, j int) bool {
		ri, rj := matches[i].Status == StatusRevoked, matches[j].Status == StatusRevoked
		if ri != rj {
			return !ri
		}
		return matches[i].IssuedAt.After(matches[j].IssuedAt)
	})
	cp := *matches[0]
	return &cp, nil
}

// GetByTxRef retrieves the credential anchored by the given transaction.
func (s *MemoryStore) GetByTxRef(_ context.Context, txRef string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.creds {
		if c.TxRef == txRef {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListByOwner returns an owner's credentials, newest first.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*Credential, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var creds []*Credential
	for _, c := range s.creds {
		if c.OwnerID == ownerID {
			cp := *c
			creds = append(creds, &cp)
		}
	}
	sort.Slice(creds, func(i, j int) bool {
		return creds[i].CreatedAt.After(creds[j].CreatedAt)
	})

	if offset >= len(creds) {
		return nil, nil
	}
	creds = creds[offset:]
	if len(creds) > limit {
		creds = creds[:limit]
	}
	return creds, nil
}

// UpdateStatus transitions a credential's status.
func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}
