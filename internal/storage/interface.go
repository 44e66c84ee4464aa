package storage

import (
	"context"
	"io"
)

// ResultStore reads the objects Athena writes to the query output location.
type ResultStore interface {
	// Download opens the object at an s3:// URI
	Download(ctx context.Context, uri string) (io.ReadCloser, error)

	// Exists checks if the object at an s3:// URI exists
	Exists(ctx context.Context, uri string) (bool, error)
}
