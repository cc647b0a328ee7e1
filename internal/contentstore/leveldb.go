package contentstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// keyPrefix namespaces payload keys so the database can hold other
// record types in the future without collisions.
const keyPrefix = "content:"

// LevelDBStore is a durable Store backed by a local LevelDB database.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB-backed content store at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open content store at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

// Put implements Store. Writing the same payload twice is a no-op at the
// storage layer since the key is derived from the bytes themselves.
func (s *LevelDBStore) Put(_ context.Context, payload []byte) (string, error) {
	addr := Address(payload)
	if err := s.db.Put([]byte(keyPrefix+addr), payload, nil); err != nil {
		return "", fmt.Errorf("store payload %s: %w", addr, err)
	}
	return addr, nil
}

// Get implements Store.
func (s *LevelDBStore) Get(_ context.Context, address string) ([]byte, error) {
	stored, err := s.db.Get([]byte(keyPrefix+address), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read payload %s: %w", address, err)
	}

	if err := verify(address, stored); err != nil {
		return nil, err
	}
	return stored, nil
}
