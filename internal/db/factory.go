package db

import (
	"fmt"
	"strings"
)

const (
	defaultDocumentPath = "benchmark-data.json"
	defaultSQLitePath   = ".benchhist.db"
)

// NewBackend creates a Backend instance based on the provided configuration
func NewBackend(config StoreConfig) (Backend, error) {
	switch strings.ToLower(config.Type) {
	case "", "file":
		if config.Path == "" {
			config.Path = defaultDocumentPath
		}
		return NewFileBackend(config.Path, config.Format)
	case "postgres", "postgresql":
		if config.DSN == "" {
			return nil, fmt.Errorf("postgres connection string is required")
		}
		return NewPostgresStore(config.DSN)
	case "sqlite", "sqlite3":
		if config.Path == "" {
			config.Path = defaultSQLitePath
		}
		return NewSQLiteStore(config.Path)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
