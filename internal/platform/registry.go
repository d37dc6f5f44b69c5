// Package platform builds venue adapters from configuration.
package platform

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/orderrouter/internal/config"
	"github.com/alanyoungcy/orderrouter/internal/domain"
	"github.com/alanyoungcy/orderrouter/internal/platform/dydx"
	"github.com/alanyoungcy/orderrouter/internal/platform/file"
	"github.com/alanyoungcy/orderrouter/internal/platform/kalshi"
	"github.com/alanyoungcy/orderrouter/internal/platform/polymarket"
)

// NewAdapter builds the adapter for one venue entry.
func NewAdapter(v config.VenueConfig, logger *slog.Logger) (domain.VenueAdapter, error) {
	switch v.Type {
	case "kalshi":
		return kalshi.NewAdapter(kalshi.AdapterConfig{
			Name:              v.Name,
			Ticker:            v.Market,
			BaseURL:           v.BaseURL,
			APIKey:            v.APIKey,
			RSAPrivateKeyPath: v.RSAPrivateKeyPath,
			Depth:             v.Depth,
		})
	case "polymarket":
		return polymarket.NewAdapter(v.Name, v.Market, v.Depth, polymarket.NewClobClient(v.BaseURL)), nil
	case "dydx":
		return dydx.NewAdapter(v.Name, v.WSURL, v.Market, v.Depth, logger), nil
	case "file":
		return file.NewAdapter(v.Name, v.Path), nil
	default:
		return nil, fmt.Errorf("platform: unknown venue type %q", v.Type)
	}
}

// NewAdapters builds every configured venue in order.
func NewAdapters(venues []config.VenueConfig, logger *slog.Logger) ([]domain.VenueAdapter, error) {
	out := make([]domain.VenueAdapter, 0, len(venues))
	for _, v := range venues {
		a, err := NewAdapter(v, logger)
		if err != nil {
			return nil, fmt.Errorf("platform: venue %s: %w", v.Name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Runners returns the adapters that need a background loop.
func Runners(adapters []domain.VenueAdapter) []domain.VenueRunner {
	var out []domain.VenueRunner
	for _, a := range adapters {
		if r, ok := a.(domain.VenueRunner); ok {
			out = append(out, r)
		}
	}
	return out
}
