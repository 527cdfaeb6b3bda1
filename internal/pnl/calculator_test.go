package pnl

import (
	"math/big"
	"testing"
	"time"

	"github.com/coinscan/internal/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// units converts whole tokens to 18-decimal smallest units
func units(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func usableQuote(price float64) types.PriceQuote {
	return types.PriceQuote{Price: price, Unit: types.UnitUSD, Source: types.SourcePool, Timestamp: time.Now()}
}

func TestOriginTokenNeverBoughtHasZeroInitialValue(t *testing.T) {
	calc := NewCalculator()

	// Creator holding: 100 tokens received free, never sold, now worth $0.05
	post := calc.ComputePostAnalytics(PostInput{
		Token:    "0x1111111111111111111111111111111111111111",
		Symbol:   "POST",
		Decimals: 18,
		Balance:  units(100),
		Events: []types.ReconstructedEvent{{
			Kind:         types.EventMint,
			TokenAmount:  units(100),
			NativeAmount: big.NewInt(0),
			Timestamp:    1_700_000_000,
		}},
		Quote:     usableQuote(0.05),
		IsOrigin:  true,
		NativeUSD: 3000,
	})

	assert.Equal(t, 100.0, post.Balance)
	assert.Equal(t, 0.0, post.TotalBought, "mints are not purchases for origin tokens")
	assert.Equal(t, 0.0, post.InitialValueUSD)
	assert.Equal(t, 5.00, post.CurrentValueUSD)
	assert.Equal(t, 5.00, post.PnLUSD)
	assert.Equal(t, 0.0, post.PnLPct, "pnlPct is defined as zero when nothing was invested")
	assert.True(t, post.IsOriginToken)
}

func TestPurchasedTokenCostBasis(t *testing.T) {
	calc := NewCalculator()

	// Bought 1000 tokens for 0.01 native at $3000/native, price since collapsed
	nativePaid, _ := new(big.Int).SetString("10000000000000000", 10) // 0.01 * 1e18
	post := calc.ComputePostAnalytics(PostInput{
		Token:    "0x2222222222222222222222222222222222222222",
		Symbol:   "MEME",
		Decimals: 18,
		Balance:  units(1000),
		Events: []types.ReconstructedEvent{{
			Kind:         types.EventBuy,
			TokenAmount:  units(1000),
			NativeAmount: nativePaid,
			Timestamp:    1_700_000_000,
		}},
		Quote:     usableQuote(0.00004),
		IsOrigin:  false,
		NativeUSD: 3000,
	})

	assert.Equal(t, 1000.0, post.TotalBought)
	assert.Equal(t, 0.03, post.AvgBuyPriceUSD)
	assert.Equal(t, 30.00, post.CostBasisUSD)
	assert.Equal(t, 30.00, post.InitialValueUSD)
	assert.Equal(t, 0.04, post.CurrentValueUSD)
	assert.Equal(t, -29.96, post.PnLUSD)
	assert.Equal(t, -99.87, post.PnLPct)
	assert.Equal(t, 1, post.BuyCount)
	assert.Equal(t, int64(1_700_000_000), post.FirstBuyAt)
}

func TestSellProceedsAndActivityTimestamps(t *testing.T) {
	calc := NewCalculator()

	nativePaid, _ := new(big.Int).SetString("20000000000000000", 10)     // 0.02 native
	nativeReceived, _ := new(big.Int).SetString("15000000000000000", 10) // 0.015 native
	post := calc.ComputePostAnalytics(PostInput{
		Token:    "0x3333333333333333333333333333333333333333",
		Decimals: 18,
		Balance:  units(400),
		Events: []types.ReconstructedEvent{
			{Kind: types.EventBuy, TokenAmount: units(1000), NativeAmount: nativePaid, Timestamp: 100},
			{Kind: types.EventSell, TokenAmount: units(600), NativeAmount: nativeReceived, Timestamp: 200},
		},
		Quote:     usableQuote(0.10),
		IsOrigin:  false,
		NativeUSD: 3000,
	})

	assert.Equal(t, 1000.0, post.TotalBought)
	assert.Equal(t, 600.0, post.TotalSold)
	assert.Equal(t, 60.00, post.CostBasisUSD)
	assert.Equal(t, 45.00, post.ReceivedUSD)
	assert.Equal(t, 0.06, post.AvgBuyPriceUSD)
	assert.Equal(t, 24.00, post.InitialValueUSD, "held 400 at $0.06 cost")
	assert.Equal(t, 40.00, post.CurrentValueUSD)
	assert.Equal(t, 1, post.BuyCount)
	assert.Equal(t, 1, post.SellCount)
	assert.Equal(t, int64(100), post.FirstBuyAt)
	assert.Equal(t, int64(200), post.LastActivityAt)
}

func TestUnusableQuoteYieldsZeroCurrentValue(t *testing.T) {
	calc := NewCalculator()

	post := calc.ComputePostAnalytics(PostInput{
		Token:     "0x4444444444444444444444444444444444444444",
		Decimals:  18,
		Balance:   units(50),
		Quote:     types.NoQuote(),
		IsOrigin:  true,
		NativeUSD: 3000,
	})

	assert.Equal(t, 0.0, post.CurrentPriceUSD)
	assert.Equal(t, 0.0, post.CurrentValueUSD)
	assert.Equal(t, 0.0, post.PnLPct)
	assert.Equal(t, string(types.SourceNone), post.PriceSource)
}

func TestPortfolioSegments(t *testing.T) {
	calc := NewCalculator()

	posts := []types.PostAnalytics{
		{
			Token: "0xa", IsOriginToken: true,
			ReceivedUSD: 12.50, CurrentValueUSD: 5.00, PnLUSD: 5.00,
		},
		{
			Token: "0xb", IsOriginToken: false,
			CostBasisUSD: 30.00, ReceivedUSD: 0, InitialValueUSD: 30.00,
			CurrentValueUSD: 0.04, PnLUSD: -29.96,
		},
	}

	portfolio := calc.ComputePortfolioAnalytics("0xwallet", posts, nil)

	assert.Equal(t, 30.00, portfolio.TotalInvestedUSD)
	assert.Equal(t, 5.04, portfolio.TotalCurrentUSD)
	assert.InDelta(t, -24.96, portfolio.TotalPnLUSD, 1e-9)
	assert.Equal(t, 1, portfolio.ProfitableCount)
	assert.Equal(t, 1, portfolio.LosingCount)

	assert.Equal(t, 1, portfolio.OriginTokens.Count)
	assert.Equal(t, 12.50, portfolio.OriginTokens.ReceivedUSD)
	assert.Equal(t, 5.00, portfolio.OriginTokens.BalanceUSD)
	assert.Equal(t, 0.0, portfolio.OriginTokens.InvestedUSD)
	assert.Equal(t, 12.50, portfolio.OriginTokens.ProfitUSD, "origin profit is sale proceeds")

	assert.Equal(t, 1, portfolio.PurchasedTokens.Count)
	assert.Equal(t, 30.00, portfolio.PurchasedTokens.InvestedUSD)
	assert.InDelta(t, -29.96, portfolio.PurchasedTokens.ProfitUSD, 1e-9)
}

// Portfolio totals must equal the sums of the per-token values exactly, for
// any post list.
func TestPortfolioAggregationRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	calc := NewCalculator()

	genPost := gopter.CombineGens(
		gen.Float64Range(0, 10_000),
		gen.Float64Range(0, 10_000),
		gen.Bool(),
	).Map(func(values []interface{}) types.PostAnalytics {
		initial := values[0].(float64)
		current := values[1].(float64)
		return types.PostAnalytics{
			InitialValueUSD: initial,
			CurrentValueUSD: current,
			PnLUSD:          current - initial,
			IsOriginToken:   values[2].(bool),
		}
	})

	properties.Property("totals equal per-post sums", prop.ForAll(
		func(posts []types.PostAnalytics) bool {
			portfolio := calc.ComputePortfolioAnalytics("0xwallet", posts, nil)

			var wantInvested, wantCurrent, wantPnL float64
			var wantProfitable, wantLosing int
			for _, post := range posts {
				wantInvested += post.InitialValueUSD
				wantCurrent += post.CurrentValueUSD
				wantPnL += post.PnLUSD
				if post.PnLUSD > 0 {
					wantProfitable++
				} else if post.PnLUSD < 0 {
					wantLosing++
				}
			}

			return portfolio.TotalInvestedUSD == wantInvested &&
				portfolio.TotalCurrentUSD == wantCurrent &&
				portfolio.TotalPnLUSD == wantPnL &&
				portfolio.ProfitableCount == wantProfitable &&
				portfolio.LosingCount == wantLosing &&
				portfolio.OriginTokens.Count+portfolio.PurchasedTokens.Count == len(posts)
		},
		gen.SliceOf(genPost),
	))

	properties.TestingRun(t)
}

func TestMalformedAmountsAreTreatedAsZero(t *testing.T) {
	calc := NewCalculator()

	post := calc.ComputePostAnalytics(PostInput{
		Token:    "0x5555555555555555555555555555555555555555",
		Decimals: 18,
		Balance:  nil,
		Events: []types.ReconstructedEvent{
			{Kind: types.EventBuy, TokenAmount: nil, NativeAmount: nil},
		},
		Quote:     usableQuote(1),
		NativeUSD: 3000,
	})

	require.NotNil(t, post)
	assert.Equal(t, 0.0, post.Balance)
	assert.Equal(t, 0.0, post.TotalBought)
	assert.Equal(t, 0.0, post.CurrentValueUSD)
}
