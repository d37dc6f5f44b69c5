package s3blob

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// LevelArchiver moves old price-level rows from the level store to object
// storage as gzip JSON lines, one object per run:
//
//	archive/levels/{symbol}/{first cycle %020d}-{last cycle %020d}.jsonl.gz
//
// Rows are deleted from the store only after the upload succeeded.
type LevelArchiver struct {
	writer domain.BlobWriter
	source domain.LevelArchiveSource
}

// NewLevelArchiver creates a LevelArchiver.
func NewLevelArchiver(writer domain.BlobWriter, source domain.LevelArchiveSource) *LevelArchiver {
	return &LevelArchiver{writer: writer, source: source}
}

// ArchiveBefore uploads every row of symbol older than cycle before and then
// deletes those rows. It returns the number of rows archived and the object
// path (empty when there was nothing to archive).
func (a *LevelArchiver) ArchiveBefore(ctx context.Context, symbol string, before int64) (int64, string, error) {
	levels, err := a.source.ListBefore(ctx, symbol, before)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive levels query: %w", err)
	}
	if len(levels) == 0 {
		return 0, "", nil
	}

	buf, err := marshalJSONLGzip(levels)
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive levels marshal: %w", err)
	}

	first, last := levels[0].ObservedAt, levels[len(levels)-1].ObservedAt
	path := archivePath(symbol, first, last)
	err = a.writer.Upload(ctx, domain.BlobObject{
		Path:            path,
		Body:            buf,
		ContentType:     "application/x-ndjson",
		ContentEncoding: "gzip",
		Metadata: map[string]string{
			"symbol":      symbol,
			"first-cycle": strconv.FormatInt(first, 10),
			"last-cycle":  strconv.FormatInt(last, 10),
			"rows":        strconv.Itoa(len(levels)),
		},
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3blob: archive levels upload: %w", err)
	}

	if _, err := a.source.DeleteBefore(ctx, symbol, before); err != nil {
		return int64(len(levels)), path, fmt.Errorf("s3blob: archive levels delete after upload: %w", err)
	}
	return int64(len(levels)), path, nil
}

// LoadArchived reads every archived object of symbol back in cycle order.
func LoadArchived(ctx context.Context, r domain.BlobReader, symbol string) ([]domain.PriceLevel, error) {
	infos, err := r.List(ctx, archivePrefix(symbol))
	if err != nil {
		return nil, err
	}
	// zero-padded cycle numbers make key order cycle order
	var out []domain.PriceLevel
	for _, info := range infos {
		if !strings.HasSuffix(info.Path, ".jsonl.gz") {
			continue
		}
		levels, err := readObject(ctx, r, info.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, levels...)
	}
	return out, nil
}

func readObject(ctx context.Context, r domain.BlobReader, path string) ([]domain.PriceLevel, error) {
	body, err := r.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return unmarshalJSONL(body, path)
}

func archivePrefix(symbol string) string {
	return "archive/levels/" + url.PathEscape(symbol) + "/"
}

func archivePath(symbol string, first, last int64) string {
	return fmt.Sprintf("%s%020d-%020d.jsonl.gz", archivePrefix(symbol), first, last)
}

// marshalJSONLGzip writes one compact JSON object per line, gzip-compressed.
func marshalJSONLGzip[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalJSONL(r io.Reader, path string) ([]domain.PriceLevel, error) {
	var out []domain.PriceLevel
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var l domain.PriceLevel
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("s3blob: %s line %d: %w", path, line, err)
		}
		out = append(out, l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	return out, nil
}
