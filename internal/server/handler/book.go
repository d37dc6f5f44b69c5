package handler

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/orderrouter/internal/book"
	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// BookReader is the read side of the composite book.
type BookReader interface {
	Snapshot() book.Snapshot
	BestPrice(side domain.Side) (int64, bool)
}

// BookHandler serves the current composite book.
type BookHandler struct {
	book  BookReader
	scale int64
}

// NewBookHandler creates a BookHandler. scale converts fixed-point prices
// back to decimals in the response.
func NewBookHandler(b BookReader, scale int64) *BookHandler {
	return &BookHandler{book: b, scale: scale}
}

type levelView struct {
	Venue      domain.Venue `json:"venue"`
	Side       domain.Side  `json:"side"`
	Price      string       `json:"price"`
	Volume     string       `json:"volume"`
	ObservedAt int64        `json:"observed_at"`
}

// GetBook returns venue metadata, levels and the best price per side.
// Optional filters: ?venue=<name> and ?side=ASK|BID.
// GET /api/book
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	venue := domain.Venue(strings.ToLower(strings.TrimSpace(q.Get("venue"))))
	side := domain.Side(strings.ToUpper(strings.TrimSpace(q.Get("side"))))
	if side != "" && !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be ASK or BID")
		return
	}

	snap := h.book.Snapshot()
	levels := make([]levelView, 0, len(snap.Levels))
	for _, l := range snap.Levels {
		if venue != "" && l.Venue != venue {
			continue
		}
		if side != "" && l.Side != side {
			continue
		}
		levels = append(levels, levelView{
			Venue:      l.Venue,
			Side:       l.Side,
			Price:      h.human(l.Price),
			Volume:     h.human(l.Volume),
			ObservedAt: l.ObservedAt,
		})
	}

	body := map[string]any{
		"symbol":  snap.Symbol,
		"version": snap.Version,
		"venues":  snap.Venues,
		"levels":  levels,
	}
	if p, ok := h.book.BestPrice(domain.SideAsk); ok {
		body["best_ask"] = h.human(p)
	}
	if p, ok := h.book.BestPrice(domain.SideBid); ok {
		body["best_bid"] = h.human(p)
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *BookHandler) human(v int64) string {
	if h.scale <= 1 {
		return decimal.NewFromInt(v).String()
	}
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(h.scale)).String()
}
