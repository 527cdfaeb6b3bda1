// Package pnl computes cost basis, current value, and profit/loss per token
// and in aggregate. Raw token and native amounts stay in big.Int smallest
// units until the final conversion; only the USD-denominated outputs use
// floating point, rounded to 2 decimal places for amounts and 6 for prices.
package pnl

import (
	"math"
	"math/big"
	"time"

	"github.com/coinscan/internal/types"
)

// Calculator derives per-token and portfolio analytics from reconstructed events
type Calculator struct {
	nativeDecimals int
}

// NewCalculator creates a calculator assuming 18-decimal native currency
func NewCalculator() *Calculator {
	return &Calculator{nativeDecimals: 18}
}

// PostInput carries everything needed to compute one token's analytics
type PostInput struct {
	Token     string
	Symbol    string
	Decimals  int
	Balance   *big.Int // Current holding, smallest units
	Events    []types.ReconstructedEvent
	Quote     types.PriceQuote
	IsOrigin  bool    // Token was received free (platform origin)
	NativeUSD float64 // Native/USD rate used to convert paid/received amounts
}

// ComputePostAnalytics derives the per-token result. Cost basis sums the
// native amounts paid across buy events; mint events carry no cost and are
// excluded from the bought totals for origin tokens, where the holding was
// received free. Initial value is exactly zero for origin tokens, and pnlPct
// is defined as zero whenever initial value is zero.
func (c *Calculator) ComputePostAnalytics(in PostInput) types.PostAnalytics {
	costNative := new(big.Int)
	proceedsNative := new(big.Int)
	boughtRaw := new(big.Int)
	soldRaw := new(big.Int)

	var buyCount, sellCount int
	var firstBuyAt, lastActivityAt int64

	for _, event := range in.Events {
		if event.Timestamp > lastActivityAt {
			lastActivityAt = event.Timestamp
		}

		switch event.Kind {
		case types.EventBuy:
			costNative.Add(costNative, safeAmount(event.NativeAmount))
			boughtRaw.Add(boughtRaw, safeAmount(event.TokenAmount))
			buyCount++
			if firstBuyAt == 0 || event.Timestamp < firstBuyAt {
				firstBuyAt = event.Timestamp
			}
		case types.EventSell:
			proceedsNative.Add(proceedsNative, safeAmount(event.NativeAmount))
			soldRaw.Add(soldRaw, safeAmount(event.TokenAmount))
			sellCount++
		case types.EventMint:
			// Free allocation: zero cost. Counted toward bought units only
			// for purchased tokens, where a mint record is an indexer
			// artifact rather than a creator allocation.
			if !in.IsOrigin {
				boughtRaw.Add(boughtRaw, safeAmount(event.TokenAmount))
			}
		}
	}

	balanceUnits := toUnits(in.Balance, in.Decimals)
	totalBought := toUnits(boughtRaw, in.Decimals)
	totalSold := toUnits(soldRaw, in.Decimals)
	costUSD := toUnits(costNative, c.nativeDecimals) * in.NativeUSD
	receivedUSD := toUnits(proceedsNative, c.nativeDecimals) * in.NativeUSD

	var avgBuyUSD float64
	if totalBought > 0 {
		avgBuyUSD = roundPrice(costUSD / totalBought)
	}

	var currentPriceUSD float64
	if in.Quote.Usable() {
		currentPriceUSD = roundPrice(in.Quote.Price)
	}

	var initialValueUSD float64
	if !in.IsOrigin {
		initialValueUSD = roundAmount(balanceUnits * avgBuyUSD)
	}
	currentValueUSD := roundAmount(balanceUnits * currentPriceUSD)

	pnlUSD := roundAmount(currentValueUSD - initialValueUSD)
	var pnlPct float64
	if initialValueUSD != 0 {
		pnlPct = roundAmount(pnlUSD / initialValueUSD * 100)
	}

	return types.PostAnalytics{
		Token:           in.Token,
		Symbol:          in.Symbol,
		Balance:         balanceUnits,
		TotalBought:     totalBought,
		TotalSold:       totalSold,
		AvgBuyPriceUSD:  avgBuyUSD,
		CurrentPriceUSD: currentPriceUSD,
		CostBasisUSD:    roundAmount(costUSD),
		ReceivedUSD:     roundAmount(receivedUSD),
		InitialValueUSD: initialValueUSD,
		CurrentValueUSD: currentValueUSD,
		PnLUSD:          pnlUSD,
		PnLPct:          pnlPct,
		BuyCount:        buyCount,
		SellCount:       sellCount,
		FirstBuyAt:      firstBuyAt,
		LastActivityAt:  lastActivityAt,
		IsOriginToken:   in.IsOrigin,
		PriceSource:     string(in.Quote.Source),
	}
}

// ComputePortfolioAnalytics aggregates per-token results. Total invested and
// total current value are exact sums of the per-token initial and current
// values. Tokens partition into an origin segment, whose profit is the sale
// proceeds since nothing was paid to acquire the holdings, and a purchased
// segment, whose profit is proceeds plus remaining value minus invested.
func (c *Calculator) ComputePortfolioAnalytics(wallet string, posts []types.PostAnalytics, diagnostics []string) types.PortfolioAnalytics {
	result := types.PortfolioAnalytics{
		Wallet:      wallet,
		Posts:       posts,
		Diagnostics: diagnostics,
		GeneratedAt: time.Now().UTC(),
	}

	for _, post := range posts {
		result.TotalInvestedUSD += post.InitialValueUSD
		result.TotalCurrentUSD += post.CurrentValueUSD
		result.TotalPnLUSD += post.PnLUSD

		if post.PnLUSD > 0 {
			result.ProfitableCount++
		} else if post.PnLUSD < 0 {
			result.LosingCount++
		}

		if post.IsOriginToken {
			result.OriginTokens.Count++
			result.OriginTokens.ReceivedUSD += post.ReceivedUSD
			result.OriginTokens.BalanceUSD += post.CurrentValueUSD
			result.OriginTokens.ProfitUSD += post.ReceivedUSD
		} else {
			result.PurchasedTokens.Count++
			result.PurchasedTokens.ReceivedUSD += post.ReceivedUSD
			result.PurchasedTokens.BalanceUSD += post.CurrentValueUSD
			result.PurchasedTokens.InvestedUSD += post.CostBasisUSD
			result.PurchasedTokens.ProfitUSD += post.ReceivedUSD + post.CurrentValueUSD - post.CostBasisUSD
		}
	}

	if result.TotalInvestedUSD != 0 {
		result.TotalPnLPct = roundAmount(result.TotalPnLUSD / result.TotalInvestedUSD * 100)
	}

	result.OriginTokens.ReceivedUSD = roundAmount(result.OriginTokens.ReceivedUSD)
	result.OriginTokens.BalanceUSD = roundAmount(result.OriginTokens.BalanceUSD)
	result.OriginTokens.ProfitUSD = roundAmount(result.OriginTokens.ProfitUSD)
	result.PurchasedTokens.ReceivedUSD = roundAmount(result.PurchasedTokens.ReceivedUSD)
	result.PurchasedTokens.BalanceUSD = roundAmount(result.PurchasedTokens.BalanceUSD)
	result.PurchasedTokens.InvestedUSD = roundAmount(result.PurchasedTokens.InvestedUSD)
	result.PurchasedTokens.ProfitUSD = roundAmount(result.PurchasedTokens.ProfitUSD)

	return result
}

// toUnits converts a raw smallest-unit amount to human-readable units
func toUnits(raw *big.Int, decimals int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), scale).Float64()
	return units
}

func safeAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return amount
}

// roundAmount rounds USD amounts to 2 decimal places
func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

// roundPrice rounds per-token USD prices to 6 decimal places
func roundPrice(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
