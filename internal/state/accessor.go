// ABOUTME: Per-turn state accessor over a Storage backend
// ABOUTME: Loads a Record lazily with defaults, tracks changes, and persists on SaveChanges

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Accessor gives a single turn get/set/save access to one user's Record.
// It is not safe for concurrent use; callers serialize turns per key.
type Accessor struct {
	storage Storage
	key     string
	record  *Record
}

// NewAccessor returns an accessor for key.
func NewAccessor(storage Storage, key string) *Accessor {
	return &Accessor{storage: storage, key: key}
}

// Key returns the storage key this accessor reads and writes.
func (a *Accessor) Key() string {
	return a.key
}

// Get returns the record for this turn, loading it on first use.
// A missing record yields a zero Record. The returned pointer may be mutated
// in place; changes are written by SaveChanges.
func (a *Accessor) Get(ctx context.Context) (*Record, error) {
	if a.record != nil {
		return a.record, nil
	}

	data, err := a.storage.Load(ctx, a.key)
	if errors.Is(err, ErrNotFound) {
		a.record = &Record{}
		return a.record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading state %s: %w", a.key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding state %s: %w", a.key, err)
	}
	a.record = &rec
	return a.record, nil
}

// Set replaces the record for this turn.
func (a *Accessor) Set(rec Record) {
	a.record = &rec
}

// Reset replaces the record with its defaults.
func (a *Accessor) Reset() {
	a.Set(Record{})
}

// SaveChanges persists the record if it was read or set during the turn.
func (a *Accessor) SaveChanges(ctx context.Context) error {
	if a.record == nil {
		return nil
	}

	data, err := json.Marshal(a.record)
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", a.key, err)
	}
	if err := a.storage.Save(ctx, a.key, data); err != nil {
		return fmt.Errorf("persisting state %s: %w", a.key, err)
	}
	return nil
}
