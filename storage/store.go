// Package storage abstracts the blob backends image bytes are persisted to.
// Stores hold bytes only. Access policy lives entirely in the image metadata
// records, a store never decides whether a read is allowed.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/viper"
)

var ErrNotFound = errors.New("object not found")

type Store interface {
	Put(ctx context.Context, key, contentType string, size int64, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New picks the backend configured under storage.type
func New() (Store, error) {
	switch viper.GetString("storage.type") {
	case "s3":
		return NewS3()
	default:
		return NewLocal(viper.GetString("storage.local_path"))
	}
}
