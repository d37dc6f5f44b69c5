package s3blob

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// Reader implements domain.BlobReader.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader creates a Reader for the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.S3(), bucket: c.Bucket()}
}

// Open returns the body of the object at path, gunzipped when the object
// was stored with Content-Encoding gzip. A missing object is
// domain.ErrNotFound.
func (r *Reader) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	if !strings.EqualFold(aws.ToString(out.ContentEncoding), "gzip") {
		return out.Body, nil
	}
	return newGzipBody(out.Body, path)
}

// List returns the objects under prefix in key order.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info := domain.BlobInfo{Path: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	slices.SortFunc(infos, func(a, b domain.BlobInfo) int { return strings.Compare(a.Path, b.Path) })
	return infos, nil
}

// gzipBody decodes a compressed object and closes both layers.
type gzipBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func newGzipBody(raw io.ReadCloser, path string) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(raw)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("s3blob: open %s: %w", path, err)
	}
	return &gzipBody{Reader: zr, raw: raw}, nil
}

func (g *gzipBody) Close() error {
	return errors.Join(g.Reader.Close(), g.raw.Close())
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	// some S3-compatible stores only give a bare 404
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
