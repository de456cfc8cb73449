package storage

import (
	"context"
	"io"
)

// Storage defines the interface for file storage operations
type Storage interface {
	// Save stores the reader's content at the given path
	Save(ctx context.Context, path string, r io.Reader) error

	// Delete removes the file at the given path
	Delete(ctx context.Context, path string) error

	// URL returns the address at which the file can be reached
	URL(path string) string
}
