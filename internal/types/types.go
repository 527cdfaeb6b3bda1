// Package types provides common type definitions for the coin scanner system.
package types

import (
	"math"
	"math/big"
	"time"
)

// EventKind represents the inferred action behind a reconstructed event
type EventKind string

const (
	// EventBuy represents a token purchase paired with a native-currency payment
	EventBuy EventKind = "buy"
	// EventSell represents a token disposal paired with a native-currency receipt
	EventSell EventKind = "sell"
	// EventMint represents tokens received free of charge (creator allocation)
	EventMint EventKind = "mint"
)

// PriceSource identifies which resolution strategy produced a quote
type PriceSource string

const (
	// SourcePool means the price was derived from on-chain pool state
	SourcePool PriceSource = "pool"
	// SourceDexScreener means the price came from the DEX pair aggregator
	SourceDexScreener PriceSource = "dexscreener"
	// SourceMarket means the price came from the market-data aggregator
	SourceMarket PriceSource = "market"
	// SourceNone means no strategy produced a usable price
	SourceNone PriceSource = "none"
)

// CurrencyUnit denominates a price quote
type CurrencyUnit string

const (
	// UnitUSD denominates a quote in US dollars
	UnitUSD CurrencyUnit = "USD"
	// UnitNative denominates a quote in the chain's native currency
	UnitNative CurrencyUnit = "NATIVE"
)

// PoolOrigin classifies the coin type behind a pool's hook address, if recognized
type PoolOrigin string

const (
	// OriginCreatorCoin marks a pool using the platform's creator-coin hook
	OriginCreatorCoin PoolOrigin = "creator_coin"
	// OriginContentCoin marks a pool using the platform's content-coin hook
	OriginContentCoin PoolOrigin = "content_coin"
	// OriginUnknown marks a pool with an unrecognized hook address
	OriginUnknown PoolOrigin = "unknown"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TokenBalance represents a wallet's current position in a single token.
// It is an immutable snapshot taken at the start of an analysis run.
type TokenBalance struct {
	Token      string  `json:"token"`      // Token contract address
	Symbol     string  `json:"symbol"`     // Token symbol
	Name       string  `json:"name"`       // Token name
	Decimals   int     `json:"decimals"`   // Token decimal precision
	RawBalance string  `json:"rawBalance"` // Balance in smallest units (decimal string)
	Balance    float64 `json:"balance"`    // Human-readable balance
}

// RawAmount parses the raw balance into a big integer.
// A malformed balance yields zero rather than an error; the analysis
// treats such positions as empty.
func (b *TokenBalance) RawAmount() *big.Int {
	amount, ok := new(big.Int).SetString(b.RawBalance, 10)
	if !ok {
		return new(big.Int)
	}
	return amount
}

// Transaction represents a native-currency transfer record supplied by the
// history provider. Value is denominated in the smallest native unit.
type Transaction struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"` // Smallest native units (decimal string)
	Timestamp   int64   `json:"timestamp"`
	BlockNumber uint64  `json:"blockNumber"`
	Input       *string `json:"input,omitempty"`
	MethodID    *string `json:"methodId,omitempty"`
}

// ValueAmount parses the transfer value into a big integer, zero on malformed input.
func (t *Transaction) ValueAmount() *big.Int {
	amount, ok := new(big.Int).SetString(t.Value, 10)
	if !ok {
		return new(big.Int)
	}
	return amount
}

// TokenTransferEvent represents a token transfer record. It shares the
// Transaction shape but Value denotes token units of the Token contract.
type TokenTransferEvent struct {
	Hash        string `json:"hash"`
	Token       string `json:"token"` // Token contract address
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // Token units (decimal string)
	Timestamp   int64  `json:"timestamp"`
	BlockNumber uint64 `json:"blockNumber"`
}

// ValueAmount parses the transferred token amount, zero on malformed input.
func (t *TokenTransferEvent) ValueAmount() *big.Int {
	amount, ok := new(big.Int).SetString(t.Value, 10)
	if !ok {
		return new(big.Int)
	}
	return amount
}

// ReconstructedEvent is an inferred buy/sell/mint action derived by pairing a
// token transfer with a plausible companion native-currency transfer.
// Created and owned by the reconstruction stage; read-only downstream.
type ReconstructedEvent struct {
	Token        string    `json:"token"`
	Kind         EventKind `json:"kind"`
	TokenAmount  *big.Int  `json:"tokenAmount"`  // Token units, smallest denomination
	NativeAmount *big.Int  `json:"nativeAmount"` // Native units paid/received, zero if unmatched
	Timestamp    int64     `json:"timestamp"`
	BlockNumber  uint64    `json:"blockNumber"`
}

// PoolKey uniquely identifies a liquidity pool.
type PoolKey struct {
	Currency0   string `json:"currency0"`
	Currency1   string `json:"currency1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tickSpacing"`
	Hooks       string `json:"hooks"`
}

// PoolState holds the decoded on-chain state of a located pool.
// Invariant: Liquidity > 0, otherwise the pool is reported as not found.
type PoolState struct {
	Key       PoolKey    `json:"key"`
	PoolID    string     `json:"poolId"` // keccak256 of the packed key, hex
	SqrtPrice *big.Int   `json:"sqrtPrice"`
	Tick      int32      `json:"tick"`
	Liquidity *big.Int   `json:"liquidity"`
	Origin    PoolOrigin `json:"origin"`
}

// PriceQuote is a best-effort price for a token. Never persisted; recomputed
// per analysis run. A quote with Price <= 0 or non-finite must not reach the
// PnL stage.
type PriceQuote struct {
	Price     float64      `json:"price"`
	Unit      CurrencyUnit `json:"unit"`
	Source    PriceSource  `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
}

// Usable reports whether the quote carries a positive, finite price.
func (q PriceQuote) Usable() bool {
	return q.Price > 0 && !math.IsInf(q.Price, 0) && !math.IsNaN(q.Price)
}

// NoQuote returns the canonical "no price" quote.
func NoQuote() PriceQuote {
	return PriceQuote{Price: 0, Unit: UnitUSD, Source: SourceNone, Timestamp: time.Now().UTC()}
}

// PostAnalytics is the per-token analysis result.
type PostAnalytics struct {
	Token           string  `json:"token"`
	Symbol          string  `json:"symbol"`
	Balance         float64 `json:"balance"`         // Human-readable current balance
	TotalBought     float64 `json:"totalBought"`     // Token units bought
	TotalSold       float64 `json:"totalSold"`       // Token units sold
	AvgBuyPriceUSD  float64 `json:"avgBuyPriceUsd"`  // USD per token unit, 6dp
	CurrentPriceUSD float64 `json:"currentPriceUsd"` // USD per token unit, 6dp
	CostBasisUSD    float64 `json:"costBasisUsd"`    // Total USD spent on buys, 2dp
	ReceivedUSD     float64 `json:"receivedUsd"`     // Total USD realized from sells, 2dp
	InitialValueUSD float64 `json:"initialValueUsd"` // Cost basis of held units, 2dp
	CurrentValueUSD float64 `json:"currentValueUsd"` // Market value of held units, 2dp
	PnLUSD          float64 `json:"pnlUsd"`          // CurrentValue - InitialValue, 2dp
	PnLPct          float64 `json:"pnlPct"`          // 0 when InitialValue == 0
	BuyCount        int     `json:"buyCount"`
	SellCount       int     `json:"sellCount"`
	FirstBuyAt      int64   `json:"firstBuyAt,omitempty"`     // Unix seconds, 0 when never bought
	LastActivityAt  int64   `json:"lastActivityAt,omitempty"` // Unix seconds of latest event
	IsOriginToken   bool    `json:"isOriginToken"`            // Received free vs purchased
	PriceSource     string  `json:"priceSource"`
}

// SegmentSummary aggregates one origin segment of the portfolio.
type SegmentSummary struct {
	Count       int     `json:"count"`
	ReceivedUSD float64 `json:"receivedUsd"` // Sale proceeds realized so far
	BalanceUSD  float64 `json:"balanceUsd"`  // Market value of remaining holdings
	InvestedUSD float64 `json:"investedUsd"` // Zero for the origin segment
	ProfitUSD   float64 `json:"profitUsd"`
}

// PortfolioAnalytics aggregates PostAnalytics across all tokens of a wallet.
type PortfolioAnalytics struct {
	Wallet           string          `json:"wallet"`
	TotalInvestedUSD float64         `json:"totalInvestedUsd"`
	TotalCurrentUSD  float64         `json:"totalCurrentUsd"`
	TotalPnLUSD      float64         `json:"totalPnlUsd"`
	TotalPnLPct      float64         `json:"totalPnlPct"`
	ProfitableCount  int             `json:"profitableCount"`
	LosingCount      int             `json:"losingCount"`
	OriginTokens     SegmentSummary  `json:"originTokens"`
	PurchasedTokens  SegmentSummary  `json:"purchasedTokens"`
	Posts            []PostAnalytics `json:"posts"`
	Diagnostics      []string        `json:"diagnostics,omitempty"` // Provider failures; empty portfolio + diagnostics != error
	GeneratedAt      time.Time       `json:"generatedAt"`
}
