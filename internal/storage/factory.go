// Package storage selects and assembles a persistence implementation.
package storage

import (
	"fmt"

	"github.com/codetrek/syntrix-client/internal/config"
	"github.com/codetrek/syntrix-client/internal/storage/memory"
	"github.com/codetrek/syntrix-client/internal/storage/sqlite"
	"github.com/codetrek/syntrix-client/internal/storage/types"
)

// NewPersistence builds the persistence named by the configuration. The
// caller owns Start and Shutdown.
func NewPersistence(cfg *config.Config) (types.Persistence, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		return memory.NewPersistence(), nil
	case "sqlite":
		return sqlite.NewPersistence(cfg.Storage.Path), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
