package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

type memBlobs struct {
	objects map[string]domain.BlobObject
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string]domain.BlobObject{}} }

func (m *memBlobs) Upload(_ context.Context, obj domain.BlobObject) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[obj.Path] = obj
	return nil
}

func (m *memBlobs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	obj, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	raw := io.NopCloser(bytes.NewReader(obj.Body))
	if obj.ContentEncoding == "gzip" {
		return newGzipBody(raw, path)
	}
	return raw, nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v.Body))})
		}
	}
	slices.SortFunc(out, func(a, b domain.BlobInfo) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

type memSource struct {
	levels  []domain.PriceLevel
	deleted int
}

func (s *memSource) ListBefore(_ context.Context, symbol string, before int64) ([]domain.PriceLevel, error) {
	var out []domain.PriceLevel
	for _, l := range s.levels {
		if l.Symbol == symbol && l.ObservedAt < before {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memSource) DeleteBefore(_ context.Context, symbol string, before int64) (int64, error) {
	var keep []domain.PriceLevel
	var n int64
	for _, l := range s.levels {
		if l.Symbol == symbol && l.ObservedAt < before {
			n++
			continue
		}
		keep = append(keep, l)
	}
	s.levels = keep
	s.deleted++
	return n, nil
}

func level(observedAt, price int64) domain.PriceLevel {
	return domain.PriceLevel{Price: price, Volume: 10, Symbol: "BTC/USD", Venue: "x", Side: domain.SideAsk, ObservedAt: observedAt}
}

func TestArchiveBeforeUploadsThenDeletes(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	src := &memSource{levels: []domain.PriceLevel{level(1, 100), level(2, 101), level(3, 102), level(7, 103)}}

	n, path, err := NewLevelArchiver(blobs, src).ArchiveBefore(ctx, "BTC/USD", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "archive/levels/BTC%2FUSD/00000000000000000001-00000000000000000003.jsonl.gz", path)
	require.Contains(t, blobs.objects, path)
	obj := blobs.objects[path]
	assert.Equal(t, "gzip", obj.ContentEncoding)
	assert.Equal(t, "application/x-ndjson", obj.ContentType)
	assert.Equal(t, map[string]string{"symbol": "BTC/USD", "first-cycle": "1", "last-cycle": "3", "rows": "3"}, obj.Metadata)
	assert.Equal(t, []domain.PriceLevel{level(7, 103)}, src.levels)

	got, err := LoadArchived(ctx, blobs, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{level(1, 100), level(2, 101), level(3, 102)}, got)
}

func TestArchiveBeforeNothingToDo(t *testing.T) {
	blobs := newMemBlobs()
	src := &memSource{levels: []domain.PriceLevel{level(9, 100)}}

	n, path, err := NewLevelArchiver(blobs, src).ArchiveBefore(context.Background(), "BTC/USD", 5)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, path)
	assert.Empty(t, blobs.objects)
	assert.Zero(t, src.deleted)
}

func TestArchiveBeforeKeepsRowsWhenUploadFails(t *testing.T) {
	blobs := newMemBlobs()
	blobs.putErr = errors.New("bucket gone")
	src := &memSource{levels: []domain.PriceLevel{level(1, 100)}}

	_, _, err := NewLevelArchiver(blobs, src).ArchiveBefore(context.Background(), "BTC/USD", 5)
	require.Error(t, err)
	assert.Len(t, src.levels, 1)
	assert.Zero(t, src.deleted)
}

func TestLoadArchivedOrdersObjectsByCycle(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	archiver := NewLevelArchiver(blobs, &memSource{levels: []domain.PriceLevel{level(11, 2)}})
	_, _, err := archiver.ArchiveBefore(ctx, "BTC/USD", 20)
	require.NoError(t, err)

	archiver = NewLevelArchiver(blobs, &memSource{levels: []domain.PriceLevel{level(2, 1)}})
	_, _, err = archiver.ArchiveBefore(ctx, "BTC/USD", 20)
	require.NoError(t, err)

	got, err := LoadArchived(ctx, blobs, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, []domain.PriceLevel{level(2, 1), level(11, 2)}, got)
}

func TestPutInputCarriesHeaders(t *testing.T) {
	in := putInput("bucket", domain.BlobObject{
		Path:            "a/b.jsonl.gz",
		Body:            []byte("xyz"),
		ContentType:     "application/x-ndjson",
		ContentEncoding: "gzip",
		Metadata:        map[string]string{"rows": "1"},
	})
	assert.Equal(t, "bucket", *in.Bucket)
	assert.Equal(t, "a/b.jsonl.gz", *in.Key)
	assert.Equal(t, int64(3), *in.ContentLength)
	assert.Equal(t, "gzip", *in.ContentEncoding)
	assert.Equal(t, "application/x-ndjson", *in.ContentType)
	assert.Equal(t, "1", in.Metadata["rows"])

	in = putInput("bucket", domain.BlobObject{Path: "plain"})
	assert.Nil(t, in.ContentEncoding)
	assert.Nil(t, in.ContentType)
}

func TestGzipBodyRejectsPlainData(t *testing.T) {
	_, err := newGzipBody(io.NopCloser(strings.NewReader("not gzip")), "x")
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}
