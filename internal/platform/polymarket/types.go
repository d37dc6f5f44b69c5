package polymarket

// OrderBookSummary is the response of the public CLOB GET /book endpoint.
// Prices are probabilities in [0,1] and sizes are outcome shares, both as
// decimal strings.
type OrderBookSummary struct {
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Timestamp    string       `json:"timestamp"`
	Hash         string       `json:"hash"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	MinOrderSize string       `json:"min_order_size,omitempty"`
	TickSize     string       `json:"tick_size,omitempty"`
}

// PriceLevel is a single bid/ask level.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
