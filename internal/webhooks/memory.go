package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for testing and
// development deployments.
type MemoryStore struct {
	mu         sync.Mutex
	subs       map[uuid.UUID]*Subscription
	deliveries []*Delivery
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// ListByUser implements Store.
func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []*Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			cp := *sub
			subs = append(subs, &cp)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

// ListByEvent implements Store.
func (s *MemoryStore) ListByEvent(_ context.Context, eventType string) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []*Subscription
	for _, sub := range s.subs {
		if !sub.Active {
			continue
		}
		for _, e := range sub.Events {
			if e == eventType {
				cp := *sub
				subs = append(subs, &cp)
				break
			}
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return ErrNotFound
	}
	delete(s.subs, id)
	return nil
}

// RecordDelivery implements Store.
func (s *MemoryStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()
	cp := *d
	s.deliveries = append(s.deliveries, &cp)
	return nil
}

// Deliveries returns a copy of the recorded delivery attempts. Test hook.
func (s *MemoryStore) Deliveries() []*Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}
