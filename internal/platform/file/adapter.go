// Package file serves venue snapshots from a JSON file on disk. It is
// used for demos and tests; the file is re-read on every fetch so an
// operator can edit it while the router runs.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// Adapter reads a domain.RawSnapshot document from path.
type Adapter struct {
	name domain.Venue
	path string
}

// NewAdapter creates an Adapter named name reading path.
func NewAdapter(name, path string) *Adapter {
	return &Adapter{name: domain.Venue(name), path: path}
}

// Name implements domain.VenueAdapter.
func (a *Adapter) Name() domain.Venue { return a.name }

// FetchOrderBook implements domain.VenueAdapter. The file may hold a
// single snapshot or an object of snapshots keyed by symbol.
func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string) (*domain.RawSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrVenue, a.name, err)
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w: %s", domain.ErrVenue, a.name, domain.ErrNotFound, a.path)
		}
		return nil, fmt.Errorf("%w: %s: read %s: %w", domain.ErrVenue, a.name, a.path, err)
	}
	snap, err := decode(data, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrVenue, a.name, err)
	}
	return snap, nil
}

func decode(data []byte, symbol string) (*domain.RawSnapshot, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("file: decode: %w: %w", domain.ErrMalformedSnapshot, err)
	}
	_, hasAsks := probe["asks"]
	_, hasBids := probe["bids"]
	if !hasAsks && !hasBids {
		raw, ok := probe[symbol]
		if !ok {
			raw, ok = probe[domain.NormalizeSymbol(symbol)]
		}
		if !ok {
			return nil, fmt.Errorf("file: no book for %s: %w", symbol, domain.ErrNotFound)
		}
		data = raw
	}
	var snap domain.RawSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("file: decode: %w: %w", domain.ErrMalformedSnapshot, err)
	}
	return &snap, nil
}
