package db

import (
	"context"

	"benchhist/internal/codec"
)

// Backend persists the whole history document.
type Backend interface {
	// Load returns the stored document. A backend with nothing stored yet
	// returns an empty document, not an error.
	Load(ctx context.Context) (*codec.Document, error)
	// Save replaces the stored document with doc.
	Save(ctx context.Context, doc *codec.Document) error
	Close() error
}

// StoreConfig holds configuration for the storage backend
type StoreConfig struct {
	Type   string // "file", "sqlite" or "postgres"
	Path   string // document file or SQLite database
	DSN    string // Postgres connection string
	Format string // "json" or "js", file backend only
}
