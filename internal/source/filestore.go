package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/alanyoungcy/livefeed/internal/domain"
)

// FileStore reads source payloads from the local filesystem.
type FileStore struct{}

// Stat returns the size and modification time of the file at path.
func (FileStore) Stat(_ context.Context, path string) (domain.ObjectInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return domain.ObjectInfo{}, wrapFSError("stat", path, err)
	}
	if fi.IsDir() {
		return domain.ObjectInfo{}, fmt.Errorf("source: stat %s: is a directory", path)
	}
	return domain.ObjectInfo{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// ReadAll returns the file contents.
func (FileStore) ReadAll(_ context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapFSError("read", path, err)
	}
	return b, nil
}

func wrapFSError(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("source: %s %s: %w", op, path, domain.ErrNotFound)
	}
	return fmt.Errorf("source: %s %s: %w", op, path, err)
}
