package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps blobs as flat files under a single directory. Meant for
// single-instance deployments and tests, S3 is the production backend.
type LocalStore struct {
	root string
}

func NewLocal(root string) (*LocalStore, error) {
	if root == "" {
		root = "./data"
	}

	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory, %w", err)
	}

	return &LocalStore{root: root}, nil
}

// path flattens the key so a crafted key can't escape the storage root
func (l *LocalStore) path(key string) string {
	return filepath.Join(l.root, filepath.Base(key))
}

// Put writes to a temp file and renames it into place, so an aborted upload
// never leaves partial bytes under a key a metadata record could point at
func (l *LocalStore) Put(ctx context.Context, key, contentType string, size int64, r io.Reader) error {
	tmp, err := os.CreateTemp(l.root, "put-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file, %w", err)
	}

	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write blob, %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move blob into place, %w", err)
	}

	return nil
}

func (l *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to open blob, %w", err)
	}

	return f, nil
}

func (l *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove blob, %w", err)
	}

	return nil
}
