// Package storage wraps S3-compatible object storage for whole-document reads
// and writes.
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by GetObject for a missing key.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStorage reads and overwrites small objects.
type ObjectStorage interface {
	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// GetObject returns the object's bytes, or ErrObjectNotFound.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// PutObject overwrites the object at key.
	PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error
}
