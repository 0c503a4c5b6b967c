// Package cache resolves where materialized items live on local storage.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iconidentify/quickstage/internal/filename"
)

// DefaultDir returns the per-user cache location for quickstage, falling back
// to the temp dir on platforms without one.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "quickstage")
}

// Resolver maps derived names to files in a single cache directory.
type Resolver struct {
	Dir string
}

// NewResolver returns a resolver for dir, or DefaultDir when dir is empty.
func NewResolver(dir string) *Resolver {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Resolver{Dir: dir}
}

// Path returns the cache path for stem and ext. Stable: the same name always
// maps to the same path.
func (r *Resolver) Path(stem, ext string) string {
	return filepath.Join(r.Dir, filename.Name{Stem: stem, Extension: ext}.Base())
}

// PathFor returns the cache path for a derived name.
func (r *Resolver) PathFor(n filename.Name) string {
	return filepath.Join(r.Dir, n.Base())
}

// Lookup reports whether path already holds a regular file. The content is
// never re-validated.
func (r *Resolver) Lookup(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Ensure creates the cache directory if needed.
func (r *Resolver) Ensure() error {
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return nil
}
