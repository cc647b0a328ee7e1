package ledger

import (
	"context"
	"sync"
	"time"
)

// receiptEntry holds one cached Resolve result.
type receiptEntry struct {
	receipt   Receipt
	expiresAt time.Time
}

func (e *receiptEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// CachingClient wraps a Client and caches Resolve results. A mined
// receipt is immutable, so positive results are safe to serve from
// memory; misses and errors are never cached, and Height always goes to
// the node because confirmations must track the live chain tip.
type CachingClient struct {
	inner   Client
	mu      sync.RWMutex
	entries map[string]*receiptEntry
	ttl     time.Duration
}

// NewCachingClient wraps inner with a receipt cache. The TTL bounds
// memory growth rather than staleness.
func NewCachingClient(inner Client, ttl time.Duration) *CachingClient {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachingClient{
		inner:   inner,
		entries: make(map[string]*receiptEntry),
		ttl:     ttl,
	}
}

// Anchor implements Client. Anchoring is a write; it passes through and
// primes the cache with the fresh receipt.
func (c *CachingClient) Anchor(ctx context.Context, contentAddress, subject string) (*Receipt, error) {
	receipt, err := c.inner.Anchor(ctx, contentAddress, subject)
	if err != nil {
		return nil, err
	}
	c.set(receipt.TxRef, receipt)
	return receipt, nil
}

// Resolve implements Client.
func (c *CachingClient) Resolve(ctx context.Context, txRef string) (*Receipt, error) {
	if receipt, ok := c.get(txRef); ok {
		return receipt, nil
	}

	receipt, err := c.inner.Resolve(ctx, txRef)
	if err != nil {
		return nil, err
	}
	c.set(txRef, receipt)
	return receipt, nil
}

// Height implements Client. Never cached.
func (c *CachingClient) Height(ctx context.Context) (uint64, error) {
	return c.inner.Height(ctx)
}

// Evict removes expired entries and returns how many were dropped.
// Called from a background ticker.
func (c *CachingClient) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired() {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries (including expired).
func (c *CachingClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *CachingClient) get(txRef string) (*Receipt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[txRef]
	if !ok || e.expired() {
		return nil, false
	}
	cp := e.receipt
	return &cp, true
}

func (c *CachingClient) set(txRef string, receipt *Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[txRef] = &receiptEntry{
		receipt:   *receipt,
		expiresAt: time.Now().Add(c.ttl),
	}
}
