package verification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAuditLog is an in-memory, thread-safe AuditLog implementation for
// testing and development. Records are append-only here too: nothing in
// the API can mutate or remove a stored record.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryAuditLog creates an empty MemoryAuditLog.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

// Append implements AuditLog.
func (l *MemoryAuditLog) Append(_ context.Context, rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.VerifiedAt.IsZero() {
		rec.VerifiedAt = time.Now().UTC()
	}
	cp := *rec
	l.records = append(l.records, &cp)
	return nil
}

// Get implements AuditLog.
func (l *MemoryAuditLog) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, rec := range l.records {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

// ListByVerifier implements AuditLog.
func (l *MemoryAuditLog) ListByVerifier(_ context.Context, verifierID uuid.UUID, page, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	// Newest first: walk the append-ordered slice backwards.
	var matched []*Record
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].VerifierID == verifierID {
			cp := *l.records[i]
			matched = append(matched, &cp)
		}
	}

	total := len(matched)
	offset := (page - 1) * limit
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return newPage(matched[offset:end], total, page, limit), nil
}

// Len returns the number of stored records. Test hook.
func (l *MemoryAuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
