// ABOUTME: BadgerDB implementation of the Storage interface
// ABOUTME: Embedded key/value backend for deployments that prefer an LSM store over SQLite

package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage implements Storage on top of BadgerDB.
type BadgerStorage struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStorage opens (or creates) a Badger database in dir.
func NewBadgerStorage(dir string) (*BadgerStorage, error) {
	return openBadger(badger.DefaultOptions(dir))
}

// NewInMemoryBadgerStorage opens a Badger database that lives only in memory.
func NewInMemoryBadgerStorage() (*BadgerStorage, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerStorage, error) {
	db, err := badger.Open(opts.WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	logger := slog.Default().With("component", "state")
	logger.Info("Badger state storage initialized", "dir", opts.Dir, "in_memory", opts.InMemory)

	return &BadgerStorage{db: db, logger: logger}, nil
}

// Load retrieves the blob stored under key.
func (b *BadgerStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading state: %w", err)
	}

	return data, nil
}

// Save stores data under key.
func (b *BadgerStorage) Save(ctx context.Context, key string, data []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	b.logger.Debug("saved state", "key", key, "size", len(data))
	return nil
}

// Delete removes key.
func (b *BadgerStorage) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	return nil
}

// Close closes the Badger database.
func (b *BadgerStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
