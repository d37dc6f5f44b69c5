// Package polymarket reads order books from the public Polymarket CLOB
// (Central Limit Order Book) API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/orderrouter/internal/domain"
)

// DefaultBaseURL is the production CLOB API root.
const DefaultBaseURL = "https://clob.polymarket.com"

// ClobClient is the REST client for the public CLOB market data endpoints.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClobClient creates a new CLOB REST client. An empty baseURL selects
// DefaultBaseURL.
func NewClobClient(baseURL string) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// GetOrderBook returns the book summary of one outcome token.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (OrderBookSummary, error) {
	path := "/book?token_id=" + url.QueryEscape(tokenID)

	respBody, err := c.get(ctx, path)
	if err != nil {
		return OrderBookSummary{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book OrderBookSummary
	if err := json.Unmarshal(respBody, &book); err != nil {
		return OrderBookSummary{}, fmt.Errorf("polymarket/clob: decode book: %w: %w", domain.ErrMalformedSnapshot, err)
	}
	return book, nil
}

func (c *ClobClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
