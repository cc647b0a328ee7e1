package users

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-memory Directory implementation for testing
// and development.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*User
	byEmail map[string]*User
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[uuid.UUID]*User),
		byEmail: make(map[string]*User),
	}
}

// Create implements Directory.
func (d *MemoryDirectory) Create(_ context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, ok := d.byEmail[key]; ok {
		return ErrDuplicateEmail
	}

	u.ID = uuid.New()
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	d.byID[u.ID] = &cp
	d.byEmail[key] = &cp
	return nil
}

// GetByID implements Directory.
func (d *MemoryDirectory) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByEmail implements Directory.
func (d *MemoryDirectory) GetByEmail(_ context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}
