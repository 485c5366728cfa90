// Package storage is blob storage for rubric documents and imported
// spreadsheets.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Download for a missing key.
var ErrNotFound = errors.New("object not found")

type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
