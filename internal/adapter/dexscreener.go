package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// DexPair is a single trading pair as reported by the DEX pair aggregator
type DexPair struct {
	ChainID     string    `json:"chainId"`
	DexID       string    `json:"dexId"`
	PairAddress string    `json:"pairAddress"`
	BaseToken   DexToken  `json:"baseToken"`
	QuoteToken  DexToken  `json:"quoteToken"`
	PriceNative string    `json:"priceNative"`
	PriceUsd    string    `json:"priceUsd"`
	Liquidity   *struct { // Pointer to handle nulls in the payload
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
}

// DexToken identifies one side of a trading pair
type DexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// DexScreenerClient queries the DEX pair aggregator for token pair quotes
type DexScreenerClient struct {
	baseURL    string
	chainSlug  string
	httpClient *http.Client
}

// NewDexScreenerClient creates a new DEX pair aggregator client
func NewDexScreenerClient(baseURL, chainSlug string, timeout time.Duration) *DexScreenerClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &DexScreenerClient{
		baseURL:    baseURL,
		chainSlug:  chainSlug,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TokenPairs returns all known pairs for a token contract address
func (c *DexScreenerClient) TokenPairs(ctx context.Context, token string) ([]DexPair, error) {
	url := fmt.Sprintf("%s/tokens/v1/%s/%s", c.baseURL, c.chainSlug, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// The endpoint returns a bare array of pairs
	var pairs []DexPair
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse pairs response: %w", err)
	}
	return pairs, nil
}

// BestUSDPrice returns the USD price of the pair with the highest USD
// liquidity among the token's known pairs. Returns 0 and false when no pair
// carries a parseable positive price.
func (c *DexScreenerClient) BestUSDPrice(ctx context.Context, token string) (float64, bool, error) {
	pairs, err := c.TokenPairs(ctx, token)
	if err != nil {
		return 0, false, err
	}

	bestPrice := 0.0
	bestLiquidity := -1.0
	for _, pair := range pairs {
		price, err := strconv.ParseFloat(pair.PriceUsd, 64)
		if err != nil || price <= 0 {
			continue
		}
		liquidity := 0.0
		if pair.Liquidity != nil {
			liquidity = pair.Liquidity.Usd
		}
		if liquidity > bestLiquidity {
			bestLiquidity = liquidity
			bestPrice = price
		}
	}

	if bestLiquidity < 0 {
		return 0, false, nil
	}

	log.Printf("[DexScreener] Best pair for %s: price=%.6f liquidityUsd=%.0f (%d pairs)",
		token, bestPrice, bestLiquidity, len(pairs))
	return bestPrice, true, nil
}
