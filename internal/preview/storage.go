package preview

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageStore holds the binary payloads webhooks send back, keyed by the
// filename recorded on the Preview.
type ImageStore interface {
	// Put writes a payload and returns the name it was stored under.
	Put(name string, data []byte) (string, error)

	// Open reads a stored payload.
	Open(name string) ([]byte, error)

	// Remove deletes a stored payload.
	Remove(name string) error
}

// DiskStore implements ImageStore on the local filesystem.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the storage directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Put writes a payload and returns the name it was stored under. Names are
// flattened to their base so a payload can never escape the store directory.
func (d *DiskStore) Put(name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, "..") {
		return "", fmt.Errorf("invalid payload name %q", name)
	}
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing payload: %w", err)
	}
	return name, nil
}

// Open reads a stored payload.
func (d *DiskStore) Open(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return data, nil
}

// Remove deletes a stored payload.
func (d *DiskStore) Remove(name string) error {
	if err := os.Remove(filepath.Join(d.dir, filepath.Base(name))); err != nil {
		return fmt.Errorf("removing payload: %w", err)
	}
	return nil
}
