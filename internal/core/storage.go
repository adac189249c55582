package core

import (
	"context"
	"fmt"

	"neosweat/internal/infra/persistence/memory"
	"neosweat/internal/infra/persistence/postgres"
	"neosweat/internal/infra/persistence/sqlite"
	"neosweat/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// Rules is evaluated before every commit; nil selects NewDefaultRulesEngine.
	Rules *domain.RulesEngine
}

// OpenPersistentStore opens the record store named by cfg.Driver, defaulting to sqlite.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig) (domain.PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	rules := cfg.Rules
	if rules == nil {
		rules = NewDefaultRulesEngine()
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(rules), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, rules)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, rules)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
