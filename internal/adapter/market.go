package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// MarketClient queries a market-data aggregator for token prices by contract
// address and for the native-currency/USD spot rate.
type MarketClient struct {
	baseURL    string
	chainSlug  string
	httpClient *http.Client
}

// NewMarketClient creates a new market-data aggregator client
func NewMarketClient(baseURL, chainSlug string, timeout time.Duration) *MarketClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &MarketClient{
		baseURL:    baseURL,
		chainSlug:  chainSlug,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TokenPriceUSD returns a token's USD price by contract address.
// A token unknown to the aggregator yields (0, false, nil).
func (c *MarketClient) TokenPriceUSD(ctx context.Context, token string) (float64, bool, error) {
	token = strings.ToLower(token)
	url := fmt.Sprintf("%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd",
		c.baseURL, c.chainSlug, token)

	body, err := c.get(ctx, url)
	if err != nil {
		return 0, false, err
	}

	// Response shape: {"<contract>": {"usd": 0.000123}}
	var payload map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, false, fmt.Errorf("failed to parse token price response: %w", err)
	}

	entry, ok := payload[token]
	if !ok || entry.USD <= 0 {
		return 0, false, nil
	}
	return entry.USD, true, nil
}

// NativeUSD returns the native currency's USD spot rate for the given coin id
func (c *MarketClient) NativeUSD(ctx context.Context, coinID string) (float64, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, coinID)

	body, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}

	var payload map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse spot price response: %w", err)
	}

	entry, ok := payload[coinID]
	if !ok || entry.USD <= 0 {
		return 0, fmt.Errorf("no usable spot price for %s", coinID)
	}

	log.Printf("[Market] %s/USD spot: %.2f", coinID, entry.USD)
	return entry.USD, nil
}

func (c *MarketClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return body, nil
}
