package kalshi

import (
	"encoding/json"
	"fmt"
)

// Orderbook is the book of one Kalshi market. Kalshi only lists resting
// bids: YES bids buy the YES contract, NO bids buy the NO contract, which is
// the same as offering YES at 100 minus the price.
type Orderbook struct {
	Ticker  string       `json:"-"`
	YesBids []PriceLevel `json:"yes"`
	NoBids  []PriceLevel `json:"no"`
}

// PriceLevel is a single price+quantity entry in the Kalshi orderbook.
type PriceLevel struct {
	Price    int64 // cents, 1-99
	Quantity int64 // contracts
}

// UnmarshalJSON accepts both the [price, quantity] pair form the REST API
// returns and the {"price":..,"quantity":..} object form.
func (p *PriceLevel) UnmarshalJSON(b []byte) error {
	var pair []int64
	if err := json.Unmarshal(b, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("kalshi: price level has %d elements", len(pair))
		}
		p.Price, p.Quantity = pair[0], pair[1]
		return nil
	}
	var obj struct {
		Price    int64 `json:"price"`
		Quantity int64 `json:"quantity"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("kalshi: decode price level: %w", err)
	}
	p.Price, p.Quantity = obj.Price, obj.Quantity
	return nil
}

// ErrorResponse is the error body returned by the Kalshi API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}
