// Package profile persists the player's rating record.
package profile

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/vmihailenco/msgpack/v5"
)

// KV is a key-value store with per-entry expiry.
type KV interface {
	// Get decodes the value stored at key into dst. It reports false when the
	// key is missing or expired.
	Get(key string, dst any) (bool, error)
	// Set stores value at key for ttl. A zero ttl never expires.
	Set(key string, value any, ttl time.Duration) error
}

const keyPrefix = "profile/"

// BadgerKV stores msgpack-encoded values in badger.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens a badger database at dir. An empty dir opens an in-memory
// database.
func OpenBadger(dir string) (*BadgerKV, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile db: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

// Close flushes and closes the database.
func (b *BadgerKV) Close() error {
	return b.db.Close()
}

// Get implements KV.
func (b *BadgerKV) Get(key string, dst any) (bool, error) {
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, dst)
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return found, nil
}

// Set implements KV.
func (b *BadgerKV) Set(key string, value any, ttl time.Duration) error {
	buf, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+key), buf)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKV is an in-process KV used in tests and when no durable store is
// available.
type MemoryKV struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryKV returns an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: map[string]memoryItem{}, now: time.Now}
}

// Get implements KV.
func (m *MemoryKV) Get(key string, dst any) (bool, error) {
	m.mu.Lock()
	item, ok := m.items[key]
	if ok && !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := msgpack.Unmarshal(item.value, dst); err != nil {
		return true, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set implements KV.
func (m *MemoryKV) Set(key string, value any, ttl time.Duration) error {
	buf, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	item := memoryItem{value: buf}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}
