package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

const (
	// multipartThreshold is the body size above which uploads are split.
	multipartThreshold = 16 << 20
	partSize           = 8 << 20
)

// Writer implements domain.BlobWriter.
type Writer struct {
	client   *s3.Client
	bucket   string
	uploader *manager.Uploader
}

// NewWriter creates a Writer for the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}
}

// Upload stores obj with its content headers and metadata. Bodies above
// multipartThreshold go through the multipart uploader; both paths send the
// same headers so readers see identical objects.
func (w *Writer) Upload(ctx context.Context, obj domain.BlobObject) error {
	input := putInput(w.bucket, obj)
	if len(obj.Body) > multipartThreshold {
		if _, err := w.uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", obj.Path, err)
		}
		return nil
	}
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", obj.Path, err)
	}
	return nil
}

func putInput(bucket string, obj domain.BlobObject) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(obj.Path),
		Body:          bytes.NewReader(obj.Body),
		ContentLength: aws.Int64(int64(len(obj.Body))),
		Metadata:      obj.Metadata,
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if obj.ContentEncoding != "" {
		input.ContentEncoding = aws.String(obj.ContentEncoding)
	}
	return input
}
