package domain

import "context"

// LevelStore is the durable log of price-level rows used for audit and
// replay. Rows are keyed by the cycle (ObservedAt) that produced them.
type LevelStore interface {
	// AppendLevels adds rows without touching existing ones.
	AppendLevels(ctx context.Context, levels []PriceLevel) error
	// ReplaceLevels atomically swaps every stored row for symbol with levels.
	ReplaceLevels(ctx context.Context, symbol string, levels []PriceLevel) error
	// ReadAll returns every row for symbol ordered by ObservedAt, then
	// insertion order.
	ReadAll(ctx context.Context, symbol string) ([]PriceLevel, error)
	// LastObservedAt returns the highest stored ObservedAt for symbol, or 0.
	LastObservedAt(ctx context.Context, symbol string) (int64, error)
}

// LevelArchiveSource is implemented by stores that support moving old rows
// to cold storage.
type LevelArchiveSource interface {
	ListBefore(ctx context.Context, symbol string, before int64) ([]PriceLevel, error)
	DeleteBefore(ctx context.Context, symbol string, before int64) (int64, error)
}
