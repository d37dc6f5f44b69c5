package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// LatestDecisions is the in-memory decision holder.
type LatestDecisions interface {
	Get(side domain.TradeSide) (domain.Decision, bool)
	Recent(n int) []domain.Decision
}

// StreamTailer reads the newest entries of a decision stream, oldest first.
type StreamTailer interface {
	StreamTail(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// DecisionHandler serves emitted decisions.
type DecisionHandler struct {
	latest LatestDecisions
	tail   StreamTailer
	stream string
	logger *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler backed by the in-memory
// holder.
func NewDecisionHandler(latest LatestDecisions, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{latest: latest, logger: logger.With(slog.String("handler", "decisions"))}
}

// WithStream makes Recent read from the durable decision stream, falling
// back to memory when the stream is unavailable.
func (h *DecisionHandler) WithStream(tail StreamTailer, stream string) *DecisionHandler {
	h.tail = tail
	h.stream = stream
	return h
}

// Latest returns the newest decision per side, or only ?side=buy|sell.
// GET /api/decisions/latest
func (h *DecisionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if s := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("side"))); s != "" {
		side := domain.TradeSide(s)
		if side != domain.TradeBuy && side != domain.TradeSell {
			writeError(w, http.StatusBadRequest, "side must be buy or sell")
			return
		}
		d, ok := h.latest.Get(side)
		if !ok {
			writeError(w, http.StatusNotFound, "no decision yet")
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}

	out := map[domain.TradeSide]domain.Decision{}
	for _, side := range []domain.TradeSide{domain.TradeBuy, domain.TradeSell} {
		if d, ok := h.latest.Get(side); ok {
			out[side] = d
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Recent returns up to ?limit= decisions, newest first.
// GET /api/decisions/recent
func (h *DecisionHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	if h.tail != nil {
		decisions, err := h.fromStream(r.Context(), limit)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"source": "stream", "decisions": decisions})
			return
		}
		h.logger.WarnContext(r.Context(), "stream read failed, serving memory",
			slog.String("stream", h.stream),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": "memory", "decisions": h.latest.Recent(limit)})
}

func (h *DecisionHandler) fromStream(ctx context.Context, limit int) ([]domain.Decision, error) {
	msgs, err := h.tail.StreamTail(ctx, h.stream, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Decision, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		var d domain.Decision
		if err := json.Unmarshal(msgs[i].Payload, &d); err != nil {
			h.logger.WarnContext(ctx, "skipping undecodable stream entry",
				slog.String("id", msgs[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
