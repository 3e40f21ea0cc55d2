package db

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"
)

// FileBackend keeps the document in a single JSON or JS file.
type FileBackend struct {
	path   string
	format codec.Format
}

// NewFileBackend creates a backend for path. An empty format is derived from
// the file extension.
func NewFileBackend(path, format string) (*FileBackend, error) {
	f, err := ParseFileFormat(path, format)
	if err != nil {
		return nil, err
	}
	return &FileBackend{path: path, format: f}, nil
}

// ParseFileFormat resolves the document format for path.
func ParseFileFormat(path, format string) (codec.Format, error) {
	if format == "" && strings.EqualFold(filepath.Ext(path), ".js") {
		return codec.FormatJS, nil
	}
	return codec.ParseFormat(format)
}

// Path returns the document location.
func (b *FileBackend) Path() string { return b.path }

// Load reads the document. A missing file yields an empty document.
func (b *FileBackend) Load(ctx context.Context) (*codec.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &codec.Document{}, nil
	}
	if err != nil {
		return nil, apperrors.Storage("load", b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &codec.Document{}, nil
	}
	doc, _, err := codec.DecodeBytes(data)
	return doc, err
}

// Save writes doc atomically: a temporary file in the same directory is
// renamed over the target.
func (b *FileBackend) Save(ctx context.Context, doc *codec.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := codec.Marshal(doc, b.format)
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Storage("save", b.path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return apperrors.Storage("save", b.path, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return apperrors.Storage("save", b.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Storage("save", b.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.Storage("save", b.path, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Storage("save", b.path, err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return apperrors.Storage("save", b.path, err)
	}
	return nil
}

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }
