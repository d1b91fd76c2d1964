package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local writes uploads below a directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal returns a Local archiver rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive: local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", dir, err)
	}
	return &Local{root: dir}, nil
}

// Archive writes data to <root>/<key> through a temp file and rename, so a
// reader never sees a partial upload.
func (l *Local) Archive(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = Key(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrArchiveFailed)
	}
	dest := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	return dest, nil
}
