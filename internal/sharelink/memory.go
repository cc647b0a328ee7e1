package sharelink

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation with the
// same compare-and-swap increment semantics as PostgresStore. For testing
// and development.
type MemoryStore struct {
	mu    sync.Mutex
	links map[string]*ShareLink // keyed by ShareID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]*ShareLink)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, link *ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link.ID = uuid.New()
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now

	cp := *link
	s.links[link.ShareID] = &cp
	return nil
}

// GetByShareID implements Store.
func (s *MemoryStore) GetByShareID(_ context.Context, shareID string) (*ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[shareID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *link
	return &cp, nil
}

// ListByCredential implements Store.
func (s *MemoryStore) ListByCredential(_ context.Context, credentialID string) ([]*ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var links []*ShareLink
	for _, link := range s.links {
		if link.CredentialID.String() == credentialID {
			cp := *link
			links = append(links, &cp)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

// IncrementViews implements Store.
func (s *MemoryStore) IncrementViews(_ context.Context, shareID string, expected int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[shareID]
	if !ok {
		return false, ErrNotFound
	}
	if !link.Active || link.ViewCount != expected {
		return false, nil
	}
	link.ViewCount++
	link.LastViewedAt = &now
	link.UpdatedAt = now
	return true, nil
}

// Deactivate implements Store.
func (s *MemoryStore) Deactivate(_ context.Context, shareID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[shareID]
	if !ok {
		return ErrNotFound
	}
	link.Active = false
	link.UpdatedAt = time.Now().UTC()
	return nil
}

// DeactivateExpired implements Store.
func (s *MemoryStore) DeactivateExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, link := range s.links {
		if link.Active && link.ExpiresAt != nil && link.ExpiresAt.Before(now) {
			link.Active = false
			link.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
