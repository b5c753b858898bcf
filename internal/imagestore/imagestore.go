// Package imagestore defines storage for auction images uploaded with a
// create request.
package imagestore

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("image not found")

// StoredImage describes one object in an ImageStore.
type StoredImage struct {
	Key     string
	ModTime time.Time
}

// ImageStore keeps auction images under opaque keys. Keys never contain a
// path separator, which is how a key is told apart from an external URL.
type ImageStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
	List(ctx context.Context) ([]StoredImage, error)
}
