// ABOUTME: Storage backend selection from configuration
// ABOUTME: Maps state.backend to the memory, sqlite, or badger implementation

package state

import (
	"fmt"

	"github.com/2389/alexa-bridge/internal/config"
)

// Open returns the Storage backend named by cfg.
func Open(cfg config.StateConfig) (Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(cfg.Path)
	case "badger":
		return NewBadgerStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
