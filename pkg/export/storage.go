package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// ErrNoStorage is returned when the storage device is missing or unusable.
var ErrNoStorage = errors.New("storage device not available")

// Storage is the persistent device export files are written to.
// It is used by the worker goroutine only.
type Storage interface {
	// Mount makes the device ready. It is called before every file is created.
	Mount() error
	// Create creates or truncates the file at the slash-separated device path,
	// creating parent directories as needed.
	Create(name string) (io.WriteCloser, error)
}

// DirStorage stores export files under a host directory.
type DirStorage struct {
	Root string
}

var _ Storage = (*DirStorage)(nil)

// Mount ensures Root exists and is a directory.
func (s *DirStorage) Mount() error {
	if s.Root == "" {
		return fmt.Errorf("%w: no root configured", ErrNoStorage)
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrNoStorage, err)
	}
	info, err := os.Stat(s.Root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoStorage, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNoStorage, s.Root)
	}
	return nil
}

// Create creates name below Root. Paths cannot escape Root.
func (s *DirStorage) Create(name string) (io.WriteCloser, error) {
	target := filepath.Join(s.Root, filepath.FromSlash(path.Clean("/"+name)))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	f, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, nil
}
