// Package storage provides configuration for storage backends.
package storage

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
)

// StorageType represents the type of storage backend
type StorageType string

const (
	// StorageTypeMemory uses in-memory storage (default)
	StorageTypeMemory StorageType = "memory"
	// StorageTypeSQLite uses SQLite persistent storage
	StorageTypeSQLite StorageType = "sqlite"
	// StorageTypePostgres uses a shared PostgreSQL instance
	StorageTypePostgres StorageType = "postgres"
)

// Config holds storage configuration
type Config struct {
	Type          StorageType // Storage backend type
	SQLitePath    string      // Path to SQLite database file
	SQLiteTimeout int         // SQLite busy timeout in milliseconds
	PostgresDSN   string      // PostgreSQL connection string
	EmbeddingDim  int         // Dimension for the pgvector embeddings column (0 = skip)
	FallbackType  StorageType // Backend to fall back to if Type fails to initialize
}

// DefaultConfig returns default configuration with in-memory storage
func DefaultConfig() Config {
	return Config{
		Type:          StorageTypeMemory,
		SQLitePath:    "./data/episodic-memory.db",
		SQLiteTimeout: 5000,
	}
}

// ConfigFromEnv reads storage configuration from environment variables
// Supports:
//   - STORAGE_TYPE: "memory" (default), "sqlite", or "postgres"
//   - SQLITE_PATH: Path to SQLite database file
//   - SQLITE_TIMEOUT: Busy timeout in milliseconds
//   - POSTGRES_DSN: PostgreSQL connection string
//   - EMBEDDING_DIM: Dimension for the pgvector embeddings column
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		cfg.Type = StorageType(storageType)
	}

	if sqlitePath := os.Getenv("SQLITE_PATH"); sqlitePath != "" {
		cfg.SQLitePath = sqlitePath
	}

	if cfg.Type == StorageTypeSQLite {
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			log.Printf("warning: failed to create SQLite directory %s: %v (factory will handle this)", dir, err)
		}
	}

	if timeout := os.Getenv("SQLITE_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil && val > 0 {
			cfg.SQLiteTimeout = val
		}
	}

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.PostgresDSN = dsn
	}
	if dim := os.Getenv("EMBEDDING_DIM"); dim != "" {
		if val, err := strconv.Atoi(dim); err == nil && val > 0 {
			cfg.EmbeddingDim = val
		}
	}

	return cfg
}
