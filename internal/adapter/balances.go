package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/coinscan/internal/types"
)

// BalanceProvider supplies a wallet's current token balances
type BalanceProvider interface {
	TokenBalances(ctx context.Context, wallet string) ([]types.TokenBalance, error)
}

// AlchemyBalanceProvider implements BalanceProvider using the
// alchemy_getTokenBalances and alchemy_getTokenMetadata endpoints.
type AlchemyBalanceProvider struct {
	provider   DataProvider
	httpClient *http.Client
}

// NewAlchemyBalanceProvider creates a balance provider over the given RPC provider
func NewAlchemyBalanceProvider(provider DataProvider, timeout time.Duration) *AlchemyBalanceProvider {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &AlchemyBalanceProvider{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type tokenBalanceEntry struct {
	ContractAddress string  `json:"contractAddress"`
	TokenBalance    *string `json:"tokenBalance"` // Hex quantity in smallest units
	Error           *string `json:"error"`
}

type tokenMetadata struct {
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Decimals *int    `json:"decimals"`
}

// TokenBalances returns the wallet's non-zero token balances with metadata.
// Tokens whose balance entry carries an error or fails to parse are skipped.
func (p *AlchemyBalanceProvider) TokenBalances(ctx context.Context, wallet string) ([]types.TokenBalance, error) {
	var balancesResult struct {
		TokenBalances []tokenBalanceEntry `json:"tokenBalances"`
	}
	if err := p.call(ctx, "alchemy_getTokenBalances", []interface{}{wallet, "erc20"}, &balancesResult); err != nil {
		return nil, fmt.Errorf("failed to fetch token balances: %w", err)
	}

	balances := make([]types.TokenBalance, 0, len(balancesResult.TokenBalances))
	for _, entry := range balancesResult.TokenBalances {
		if entry.Error != nil || entry.TokenBalance == nil {
			continue
		}
		raw, ok := new(big.Int).SetString(strings.TrimPrefix(*entry.TokenBalance, "0x"), 16)
		if !ok || raw.Sign() <= 0 {
			continue
		}

		balance := types.TokenBalance{
			Token:      strings.ToLower(entry.ContractAddress),
			Decimals:   18,
			RawBalance: raw.String(),
		}

		var meta tokenMetadata
		if err := p.call(ctx, "alchemy_getTokenMetadata", []interface{}{entry.ContractAddress}, &meta); err != nil {
			log.Printf("[Balances] Metadata lookup failed for %s: %v", entry.ContractAddress, err)
		} else {
			if meta.Symbol != nil {
				balance.Symbol = *meta.Symbol
			}
			if meta.Name != nil {
				balance.Name = *meta.Name
			}
			if meta.Decimals != nil && *meta.Decimals > 0 {
				balance.Decimals = *meta.Decimals
			}
		}

		scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(balance.Decimals)), nil))
		balance.Balance, _ = new(big.Float).Quo(new(big.Float).SetInt(raw), scale).Float64()

		balances = append(balances, balance)
	}

	log.Printf("[Balances] Wallet %s holds %d tokens with non-zero balance", wallet, len(balances))
	return balances, nil
}

// call performs one JSON-RPC request against the current provider URL
func (p *AlchemyBalanceProvider) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	rpcURL, err := p.provider.GetCurrentURL()
	if err != nil {
		return err
	}

	requestBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.provider.RecordFailure(err)
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		p.provider.RecordFailure(fmt.Errorf("status %d", resp.StatusCode))
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	var rpcResponse struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResponse); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if rpcResponse.Error != nil {
		return fmt.Errorf("RPC error %d: %s", rpcResponse.Error.Code, rpcResponse.Error.Message)
	}

	p.provider.RecordSuccess(0)
	return json.Unmarshal(rpcResponse.Result, result)
}
