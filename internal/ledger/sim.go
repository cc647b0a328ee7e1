package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// SimClient is an in-memory simulated chain. Each anchor mines one block;
// AdvanceBlocks mines empty blocks so tests can accumulate confirmations.
// Safe for concurrent use.
type SimClient struct {
	mu       sync.RWMutex
	height   uint64
	receipts map[string]*Receipt
}

// NewSimClient creates a simulated chain at the given starting height.
func NewSimClient(startHeight uint64) *SimClient {
	return &SimClient{
		height:   startHeight,
		receipts: make(map[string]*Receipt),
	}
}

// Anchor implements Client. The simulated chain never fails transiently.
func (c *SimClient) Anchor(_ context.Context, contentAddress, subject string) (*Receipt, error) {
	if contentAddress == "" || subject == "" {
		return nil, fmt.Errorf("%w: content address and subject are required", ErrInvalidParams)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate tx ref: %w", err)
	}
	txRef := "0x" + hex.EncodeToString(buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.height++
	receipt := &Receipt{TxRef: txRef, BlockHeight: c.height}
	c.receipts[txRef] = receipt
	return receipt, nil
}

// Resolve implements Client.
func (c *SimClient) Resolve(_ context.Context, txRef string) (*Receipt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	receipt, ok := c.receipts[txRef]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	return &Receipt{TxRef: receipt.TxRef, BlockHeight: receipt.BlockHeight}, nil
}

// Height implements Client.
func (c *SimClient) Height(_ context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height, nil
}

// AdvanceBlocks mines n empty blocks.
func (c *SimClient) AdvanceBlocks(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
}

// Drop forgets a receipt, simulating a reference that never confirmed.
// Test hook.
func (c *SimClient) Drop(txRef string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.receipts, txRef)
}
