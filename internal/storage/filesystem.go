package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// FilesystemStorage implements Filesystem for the local filesystem.
// When a root is set, relative paths are resolved against it and no path
// may escape it.
type FilesystemStorage struct {
	root string
}

// NewFilesystemStorage creates a new filesystem storage. An empty root leaves
// paths unrestricted.
func NewFilesystemStorage(root string) *FilesystemStorage {
	if root != "" {
		root = filepath.Clean(root)
	}
	return &FilesystemStorage{root: root}
}

func (s *FilesystemStorage) resolve(path string) (string, error) {
	if s.root == "" {
		return filepath.Clean(path), nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	return path, nil
}

// EnsureDir creates path with all parents
func (s *FilesystemStorage) EnsureDir(ctx context.Context, path string) error {
	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", resolved, err)
	}
	return nil
}

// Exists checks if a file or directory exists at path
func (s *FilesystemStorage) Exists(ctx context.Context, path string) (bool, error) {
	resolved, err := s.resolve(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", resolved, err)
	}
	return true, nil
}

// WriteFile writes data to path, creating the parent directory if needed
func (s *FilesystemStorage) WriteFile(ctx context.Context, path string, data []byte) error {
	resolved, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", resolved, err)
	}

	// Write to a sibling temp file first so readers never see a partial file
	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", resolved, err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", resolved, err)
	}
	return nil
}

// Glob matches pattern against the filesystem. The walk starts at the
// longest literal directory prefix of the pattern and never descends deeper
// than the pattern has path segments. Symlinked directories are followed and
// matches are reported under their linked path.
func (s *FilesystemStorage) Glob(ctx context.Context, pattern string) ([]string, error) {
	resolved, err := s.resolve(pattern)
	if err != nil {
		return nil, err
	}
	resolved = filepath.ToSlash(resolved)

	matcher, err := glob.Compile(resolved, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	base := literalPrefix(resolved)
	maxDepth := strings.Count(strings.TrimPrefix(resolved, base), "/")

	root := filepath.FromSlash(base)
	if !isDir(root, nil) {
		return nil, nil
	}

	var matches []string
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) || os.IsPermission(err) {
				return nil
			}
			return err
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if matcher.Match(filepath.ToSlash(path)) {
				matches = append(matches, path)
			}
			// The depth bound also stops symlink cycles
			if depth < maxDepth && isDir(path, entry) {
				if err := walk(path, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root, 1); err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", base, err)
	}

	slices.Sort(matches)
	return matches, nil
}

// isDir reports whether path is a directory, following symlinks
func isDir(path string, entry fs.DirEntry) bool {
	if entry != nil && entry.IsDir() {
		return true
	}
	if entry != nil && entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// literalPrefix returns the directory part of pattern before the first
// segment containing a glob metacharacter, without a trailing slash
func literalPrefix(pattern string) string {
	segments := strings.Split(pattern, "/")
	var literal []string
	for _, segment := range segments[:len(segments)-1] {
		if strings.ContainsAny(segment, `*?[{\`) {
			break
		}
		literal = append(literal, segment)
	}
	prefix := strings.Join(literal, "/")
	if prefix == "" && strings.HasPrefix(pattern, "/") {
		return "/"
	}
	if prefix == "" {
		return "."
	}
	return prefix
}
