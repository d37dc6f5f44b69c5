package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobObject is one object to upload. ContentEncoding "gzip" means Body is
// compressed and readers decode it on the way out.
type BlobObject struct {
	Path            string
	Body            []byte
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// BlobWriter uploads objects to object storage.
type BlobWriter interface {
	Upload(ctx context.Context, obj BlobObject) error
}

// BlobReader retrieves objects from object storage. Open returns the decoded
// body; List returns objects under prefix in key order.
type BlobReader interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
