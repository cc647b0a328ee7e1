package contentstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// It is primarily useful for testing and for development deployments
// that do not require durable persistence across restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, payload []byte) (string, error) {
	addr := Address(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payloads[addr]; !ok {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		s.payloads[addr] = buf
	}
	return addr, nil
}

// Get implements Store. The integrity check runs even though the payload
// was keyed by its own digest at write time; storage is never trusted alone.
func (s *MemoryStore) Get(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	stored, ok := s.payloads[address]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if err := verify(address, stored); err != nil {
		return nil, err
	}

	buf := make([]byte, len(stored))
	copy(buf, stored)
	return buf, nil
}

// Corrupt overwrites the bytes stored at address without changing the key.
// Test hook for exercising the integrity check.
func (s *MemoryStore) Corrupt(address string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[address] = payload
}
