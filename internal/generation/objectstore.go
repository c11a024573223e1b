package generation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectStore persists generated assets (scripts, stills, clips, finals)
// under a staging root keyed by relative paths.
type ObjectStore struct {
	root string
}

// NewObjectStore roots an object store at dir.
func NewObjectStore(dir string) *ObjectStore {
	return &ObjectStore{root: dir}
}

// Save writes data under key and returns the absolute path.
func (o *ObjectStore) Save(key string, data []byte) (string, error) {
	path := o.PathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("ensure asset dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", key, err)
	}
	return path, nil
}

// PathFor resolves a key to its absolute path without touching the disk.
func (o *ObjectStore) PathFor(key string) string {
	return filepath.Join(o.root, filepath.FromSlash(key))
}

// RemovePrefix deletes everything stored under a key prefix. Used by the
// cleanup stage once an episode is published.
func (o *ObjectStore) RemovePrefix(prefix string) error {
	target := o.PathFor(prefix)
	rel, err := filepath.Rel(o.root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("refusing to remove %q outside the staging root", prefix)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove assets under %s: %w", prefix, err)
	}
	return nil
}
