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
	"strconv"
	"strings"
	"time"

	"github.com/coinscan/internal/types"
)

// HistoryProvider supplies a wallet's native-currency transaction list and a
// token's transfer-event list. Implementations are external collaborators;
// the analysis core treats their output as read-only.
type HistoryProvider interface {
	// WalletTransactions returns the wallet's native-currency transfer records
	WalletTransactions(ctx context.Context, wallet string) ([]types.Transaction, error)

	// TokenTransfers returns the wallet's transfer events for a single token contract
	TokenTransfers(ctx context.Context, wallet, token string) ([]types.TokenTransferEvent, error)
}

// AlchemyHistoryProvider implements HistoryProvider using the
// alchemy_getAssetTransfers endpoint of an Alchemy-compatible RPC node.
type AlchemyHistoryProvider struct {
	provider   DataProvider
	httpClient *http.Client
	maxPerSide int
}

// NewAlchemyHistoryProvider creates a history provider over the given RPC provider
func NewAlchemyHistoryProvider(provider DataProvider, timeout time.Duration) *AlchemyHistoryProvider {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &AlchemyHistoryProvider{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		maxPerSide: 1000,
	}
}

// assetTransfer is the wire shape of a single transfer entry
type assetTransfer struct {
	BlockNum    string  `json:"blockNum"`
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          *string `json:"to"`
	Category    string  `json:"category"`
	RawContract struct {
		Value   *string `json:"value"` // Hex quantity in smallest units
		Address *string `json:"address"`
	} `json:"rawContract"`
	Metadata *struct {
		BlockTimestamp string `json:"blockTimestamp"` // ISO 8601
	} `json:"metadata"`
}

type assetTransfersResult struct {
	Transfers []assetTransfer `json:"transfers"`
	PageKey   *string         `json:"pageKey,omitempty"`
}

// WalletTransactions returns the wallet's native-currency transfer records
func (p *AlchemyHistoryProvider) WalletTransactions(ctx context.Context, wallet string) ([]types.Transaction, error) {
	transfers, err := p.fetchBothDirections(ctx, wallet, []string{"external", "internal"}, nil)
	if err != nil {
		return nil, err
	}

	transactions := make([]types.Transaction, 0, len(transfers))
	for _, t := range transfers {
		blockNum, timestamp, value, ok := decodeTransferFields(t)
		if !ok {
			continue
		}
		tx := types.Transaction{
			Hash:        t.Hash,
			From:        strings.ToLower(t.From),
			Value:       value,
			Timestamp:   timestamp,
			BlockNumber: blockNum,
		}
		if t.To != nil {
			tx.To = strings.ToLower(*t.To)
		}
		transactions = append(transactions, tx)
	}

	log.Printf("[History] Fetched %d native transactions for %s", len(transactions), wallet)
	return transactions, nil
}

// TokenTransfers returns the wallet's transfer events for a single token contract
func (p *AlchemyHistoryProvider) TokenTransfers(ctx context.Context, wallet, token string) ([]types.TokenTransferEvent, error) {
	contract := strings.ToLower(token)
	transfers, err := p.fetchBothDirections(ctx, wallet, []string{"erc20"}, &contract)
	if err != nil {
		return nil, err
	}

	events := make([]types.TokenTransferEvent, 0, len(transfers))
	for _, t := range transfers {
		if t.RawContract.Address == nil || !strings.EqualFold(*t.RawContract.Address, token) {
			continue
		}
		blockNum, timestamp, value, ok := decodeTransferFields(t)
		if !ok {
			continue
		}
		ev := types.TokenTransferEvent{
			Hash:        t.Hash,
			Token:       contract,
			From:        strings.ToLower(t.From),
			Value:       value,
			Timestamp:   timestamp,
			BlockNumber: blockNum,
		}
		if t.To != nil {
			ev.To = strings.ToLower(*t.To)
		}
		events = append(events, ev)
	}

	log.Printf("[History] Fetched %d transfer events for token %s, wallet %s", len(events), token, wallet)
	return events, nil
}

// fetchBothDirections fetches incoming and outgoing transfers and deduplicates
// by (hash, direction target) so both legs of self-transfers survive.
func (p *AlchemyHistoryProvider) fetchBothDirections(ctx context.Context, wallet string, categories []string, contract *string) ([]assetTransfer, error) {
	outgoing, err := p.fetchTransfers(ctx, wallet, "fromAddress", categories, contract)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outgoing transfers: %w", err)
	}

	incoming, err := p.fetchTransfers(ctx, wallet, "toAddress", categories, contract)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch incoming transfers: %w", err)
	}

	seen := make(map[string]bool, len(outgoing)+len(incoming))
	merged := make([]assetTransfer, 0, len(outgoing)+len(incoming))
	for _, t := range append(outgoing, incoming...) {
		key := t.Hash + "|" + t.From
		if t.To != nil {
			key += "|" + *t.To
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, t)
	}
	return merged, nil
}

// fetchTransfers fetches transfers for a single direction, following page keys
func (p *AlchemyHistoryProvider) fetchTransfers(ctx context.Context, wallet, direction string, categories []string, contract *string) ([]assetTransfer, error) {
	rpcURL, err := p.provider.GetCurrentURL()
	if err != nil {
		return nil, err
	}

	var all []assetTransfer
	var pageKey *string
	maxPages := 10

	for page := 1; page <= maxPages; page++ {
		params := map[string]interface{}{
			direction:      wallet,
			"category":     categories,
			"maxCount":     fmt.Sprintf("0x%x", p.maxPerSide),
			"order":        "asc",
			"withMetadata": true,
		}
		if contract != nil {
			params["contractAddresses"] = []string{*contract}
		}
		if pageKey != nil {
			params["pageKey"] = *pageKey
		}

		requestBody := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      page,
			"method":  "alchemy_getAssetTransfers",
			"params":  []map[string]interface{}{params},
		}

		jsonData, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcURL, bytes.NewBuffer(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			p.provider.RecordFailure(err)
			return nil, fmt.Errorf("failed to make request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			p.provider.RecordFailure(fmt.Errorf("status %d", resp.StatusCode))
			return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
		}

		var rpcResponse struct {
			Result assetTransfersResult `json:"result"`
			Error  *struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &rpcResponse); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if rpcResponse.Error != nil {
			return nil, fmt.Errorf("RPC error %d: %s", rpcResponse.Error.Code, rpcResponse.Error.Message)
		}

		p.provider.RecordSuccess(0)
		all = append(all, rpcResponse.Result.Transfers...)

		if rpcResponse.Result.PageKey == nil || *rpcResponse.Result.PageKey == "" {
			break
		}
		pageKey = rpcResponse.Result.PageKey
	}

	return all, nil
}

// decodeTransferFields extracts block number, timestamp, and the raw smallest-unit
// value from a transfer entry. Entries without a raw value are dropped rather
// than approximated from the display amount.
func decodeTransferFields(t assetTransfer) (blockNum uint64, timestamp int64, value string, ok bool) {
	blockNum, err := strconv.ParseUint(strings.TrimPrefix(t.BlockNum, "0x"), 16, 64)
	if err != nil {
		log.Printf("[History] Skipping transfer %s: bad block number %q", t.Hash, t.BlockNum)
		return 0, 0, "", false
	}

	if t.Metadata != nil && t.Metadata.BlockTimestamp != "" {
		parsed, err := time.Parse(time.RFC3339, t.Metadata.BlockTimestamp)
		if err == nil {
			timestamp = parsed.Unix()
		}
	}

	if t.RawContract.Value == nil {
		return 0, 0, "", false
	}
	raw, parsed := new(big.Int).SetString(strings.TrimPrefix(*t.RawContract.Value, "0x"), 16)
	if !parsed {
		return 0, 0, "", false
	}
	return blockNum, timestamp, raw.String(), true
}
