package storage

import (
	"context"
	"errors"
)

// ErrPathTraversal is returned when a path resolves outside the storage root
var ErrPathTraversal = errors.New("invalid path: path traversal detected")

// Filesystem provides the directory and file operations the pipeline needs
// on the shared sequencing filesystem
type Filesystem interface {
	// EnsureDir creates the directory and any missing parents. Calling it
	// on an existing directory is not an error.
	EnsureDir(ctx context.Context, path string) error

	// Exists reports whether anything exists at path
	Exists(ctx context.Context, path string) (bool, error)

	// Glob returns the paths matching pattern, sorted
	Glob(ctx context.Context, pattern string) ([]string, error)

	// WriteFile writes data to path, replacing any previous content
	WriteFile(ctx context.Context, path string, data []byte) error
}
