package kalshi

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// Adapter exposes one Kalshi market as a venue. The YES contract is the
// instrument: YES bids become bids, NO bids become asks at 100 minus their
// price, and cent prices are reported in dollars.
type Adapter struct {
	name   domain.Venue
	ticker string
	depth  int
	client *Client
}

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	Name              string
	Ticker            string
	BaseURL           string
	APIKey            string
	RSAPrivateKeyPath string
	Depth             int
}

// NewAdapter creates an Adapter, loading the signing key when one is
// configured.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	client := NewClient(cfg.BaseURL, cfg.APIKey)
	if cfg.RSAPrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(cfg.RSAPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("kalshi: read private key: %w", err)
		}
		if err := client.SetRSAPrivateKey(pemBytes); err != nil {
			return nil, err
		}
	}
	return NewAdapterWithClient(cfg.Name, cfg.Ticker, cfg.Depth, client), nil
}

// NewAdapterWithClient creates an Adapter over an existing client.
func NewAdapterWithClient(name, ticker string, depth int, client *Client) *Adapter {
	return &Adapter{name: domain.Venue(name), ticker: ticker, depth: depth, client: client}
}

// Name implements domain.VenueAdapter.
func (a *Adapter) Name() domain.Venue { return a.name }

// FetchOrderBook implements domain.VenueAdapter. symbol is ignored; the
// adapter always reads its configured ticker.
func (a *Adapter) FetchOrderBook(ctx context.Context, _ string) (*domain.RawSnapshot, error) {
	ob, err := a.client.GetOrderbook(ctx, a.ticker, a.depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrVenue, a.name, err)
	}
	return ToRawSnapshot(ob), nil
}

// ToRawSnapshot converts a Kalshi book into YES-contract asks and bids.
// Levels are ordered best first on each side.
func ToRawSnapshot(ob Orderbook) *domain.RawSnapshot {
	snap := &domain.RawSnapshot{
		Asks: make([]domain.RawEntry, 0, len(ob.NoBids)),
		Bids: make([]domain.RawEntry, 0, len(ob.YesBids)),
	}
	// Kalshi lists bids ascending; the best bid is last
	for i := len(ob.YesBids) - 1; i >= 0; i-- {
		l := ob.YesBids[i]
		snap.Bids = append(snap.Bids, entry(l.Price, l.Quantity, "yes", l.Price))
	}
	for i := len(ob.NoBids) - 1; i >= 0; i-- {
		l := ob.NoBids[i]
		snap.Asks = append(snap.Asks, entry(100-l.Price, l.Quantity, "no", l.Price))
	}
	return snap
}

func entry(cents, quantity int64, source string, sourceCents int64) domain.RawEntry {
	return domain.RawEntry{
		Price:  decimal.New(cents, -2).String(),
		Volume: strconv.FormatInt(quantity, 10),
		Extra:  map[string]any{"book": source, "source_price_cents": sourceCents},
	}
}
