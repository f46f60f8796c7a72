// Package storage provides the object-store backends the audit archive
// writes to.
package storage

import (
	"context"
	"io"
)

// ObjectStore defines the write-side object operations shared by backends.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}
