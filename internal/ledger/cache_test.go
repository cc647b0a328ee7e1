package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/credanchor/credanchor/internal/ledger"
)

// countingClient counts calls through to a SimClient.
type countingClient struct {
	inner *ledger.SimClient

	mu       sync.Mutex
	resolves int
	heights  int
}

func (c *countingClient) Anchor(ctx context.Context, addr, subject string) (*ledger.Receipt, error) {
	return c.inner.Anchor(ctx, addr, subject)
}

func (c *countingClient) Resolve(ctx context.Context, txRef string) (*ledger.Receipt, error) {
	c.mu.Lock()
	c.resolves++
	c.mu.Unlock()
	return c.inner.Resolve(ctx, txRef)
}

func (c *countingClient) Height(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	c.heights++
	c.mu.Unlock()
	return c.inner.Height(ctx)
}

func TestCachingClient_resolveCached(t *testing.T) {
	counting := &countingClient{inner: ledger.NewSimClient(10)}
	c := ledger.NewCachingClient(counting, time.Minute)
	ctx := context.Background()

	receipt, err := counting.inner.Anchor(ctx, "addr", "sub")
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := c.Resolve(ctx, receipt.TxRef)
		if err != nil {
			t.Fatalf("Resolve %d: %v", i, err)
		}
		if got.BlockHeight != receipt.BlockHeight {
			t.Errorf("height %d, want %d", got.BlockHeight, receipt.BlockHeight)
		}
	}

	if counting.resolves != 1 {
		t.Errorf("expected 1 upstream resolve, got %d", counting.resolves)
	}
}

func TestCachingClient_anchorPrimesCache(t *testing.T) {
	counting := &countingClient{inner: ledger.NewSimClient(10)}
	c := ledger.NewCachingClient(counting, time.Minute)
	ctx := context.Background()

	receipt, err := c.Anchor(ctx, "addr", "sub")
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if _, err := c.Resolve(ctx, receipt.TxRef); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if counting.resolves != 0 {
		t.Errorf("anchor should prime the cache, saw %d upstream resolves", counting.resolves)
	}
}

func TestCachingClient_missNotCached(t *testing.T) {
	counting := &countingClient{inner: ledger.NewSimClient(10)}
	c := ledger.NewCachingClient(counting, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Resolve(ctx, "0xmissing"); !errors.Is(err, ledger.ErrReceiptNotFound) {
			t.Fatalf("expected ErrReceiptNotFound, got %v", err)
		}
	}
	if counting.resolves != 2 {
		t.Errorf("misses must not be cached: %d upstream resolves", counting.resolves)
	}
}

func TestCachingClient_heightNeverCached(t *testing.T) {
	counting := &countingClient{inner: ledger.NewSimClient(10)}
	c := ledger.NewCachingClient(counting, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Height(ctx); err != nil {
			t.Fatalf("Height: %v", err)
		}
	}
	if counting.heights != 3 {
		t.Errorf("height must always hit the node, got %d calls", counting.heights)
	}
}

func TestCachingClient_evict(t *testing.T) {
	counting := &countingClient{inner: ledger.NewSimClient(10)}
	c := ledger.NewCachingClient(counting, time.Millisecond)
	ctx := context.Background()

	receipt, err := c.Anchor(ctx, "addr", "sub")
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}

	time.Sleep(5 * time.Millisecond)
	if n := c.Evict(); n != 1 {
		t.Errorf("evicted %d entries, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("cache not empty after eviction")
	}

	// An expired entry falls through to the node.
	if _, err := c.Resolve(ctx, receipt.TxRef); err != nil {
		t.Fatalf("Resolve after eviction: %v", err)
	}
	if counting.resolves != 1 {
		t.Errorf("expected upstream resolve after eviction, got %d", counting.resolves)
	}
}
