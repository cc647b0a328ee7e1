// Package contentstore provides content-addressed storage for credential
// document payloads.
//
// A payload's address is the hex-encoded SHA-256 of its bytes. Storing the
// same bytes twice yields the same address, so deduplication is implicit.
// Every Get recomputes the digest of the retrieved bytes and compares it
// against the requested address; a mismatch is reported as
// ErrCorruptedContent and is never retried.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - LevelDBStore: durable local storage, for single-node deployments.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNotFound is returned when no payload exists at the requested address.
var ErrNotFound = errors.New("content not found")

// ErrCorruptedContent is returned when the bytes retrieved for an address
// no longer hash to that address. This is fatal: the stored payload has
// been tampered with or damaged, and retrying cannot help.
var ErrCorruptedContent = errors.New("content integrity check failed")

// Store is the interface for content-addressed payload storage.
type Store interface {
	// Put stores payload and returns its content address.
	// Putting identical bytes twice returns the identical address.
	Put(ctx context.Context, payload []byte) (string, error)

	// Get retrieves the payload at address, verifying its integrity.
	// Returns ErrNotFound if no payload exists, or ErrCorruptedContent
	// if the stored bytes no longer match the address.
	Get(ctx context.Context, address string) ([]byte, error)
}

// Address computes the content address for payload: hex-encoded SHA-256.
func Address(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// verify checks that payload hashes to address.
func verify(address string, payload []byte) error {
	if Address(payload) != address {
		return ErrCorruptedContent
	}
	return nil
}
