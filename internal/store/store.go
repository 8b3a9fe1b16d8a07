package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/tehasdf/pbcr/internal/paths"
)

// Local state store: content-addressed blobs plus image and container
// bookkeeping records.
type Store struct {
	root string     // Base directory for all state.
	mu   sync.Mutex // Guards the JSON record files.
}

// Creates a store rooted at the given directory.
//
// The blob, image, and container subdirectories are created if missing.
// Tests pass a temporary directory; the CLI passes the XDG state path.
func New(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, "blobs"),
		filepath.Join(root, "images"),
		filepath.Join(root, "containers"),
	} {
		if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
			return nil, err
		}
	}
	return &Store{root: root}, nil
}

// Returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Returns the directory holding a named container's state.
func (s *Store) ContainerDir(name string) string {
	return filepath.Join(s.root, "containers", name)
}

// Returns the rootfs directory for a named container.
func (s *Store) RootfsDir(name string) string {
	return filepath.Join(s.ContainerDir(name), "rootfs")
}
