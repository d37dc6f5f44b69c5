package polymarket

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// Adapter exposes one Polymarket outcome token as a venue.
type Adapter struct {
	name    domain.Venue
	tokenID string
	depth   int
	client  *ClobClient
}

// NewAdapter creates an Adapter reading tokenID. depth > 0 keeps only the
// best depth levels per side.
func NewAdapter(name, tokenID string, depth int, client *ClobClient) *Adapter {
	return &Adapter{name: domain.Venue(name), tokenID: tokenID, depth: depth, client: client}
}

// Name implements domain.VenueAdapter.
func (a *Adapter) Name() domain.Venue { return a.name }

// FetchOrderBook implements domain.VenueAdapter. symbol is ignored; the
// adapter always reads its configured token.
func (a *Adapter) FetchOrderBook(ctx context.Context, _ string) (*domain.RawSnapshot, error) {
	book, err := a.client.GetOrderBook(ctx, a.tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrVenue, a.name, err)
	}
	return &domain.RawSnapshot{
		Asks: entries(book.Asks, a.depth),
		Bids: entries(book.Bids, a.depth),
	}, nil
}

// entries copies levels; the CLOB lists each side worst first, so the best
// depth levels are the last ones.
func entries(levels []PriceLevel, depth int) []domain.RawEntry {
	if depth > 0 && len(levels) > depth {
		levels = levels[len(levels)-depth:]
	}
	out := make([]domain.RawEntry, 0, len(levels))
	for _, l := range levels {
		out = append(out, domain.RawEntry{Price: l.Price, Volume: l.Size})
	}
	return out
}
