// ABOUTME: Storage interface and conversation record types for alexa-bridge persistence
// ABOUTME: Defines Record, the Storage interface, and the state key layout

package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no saved state
var ErrNotFound = errors.New("not found")

// Record is the per-user conversation state
type Record struct {
	DisplayName string `json:"displayName,omitempty"` // empty means not yet asked
	TurnCount   int    `json:"turnCount"`
}

// HasName reports whether the user already told us their name.
func (r *Record) HasName() bool {
	return r.DisplayName != ""
}

// Storage is a key/value store for serialized state blobs.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Load returns the blob stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores the blob under key, replacing any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// KeyFor returns the storage key for a user on a channel.
func KeyFor(channelID, userID string) string {
	return channelID + "/users/" + userID
}
