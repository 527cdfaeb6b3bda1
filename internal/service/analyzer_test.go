package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coinscan/internal/config"
	internalerrors "github.com/coinscan/internal/errors"
	"github.com/coinscan/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testWallet    = "0xAAAA00000000000000000000000000000000aaaa"
	testTrader    = "0xbbbb00000000000000000000000000000000bbbb"
	originToken   = "0x1111000000000000000000000000000000001111"
	boughtToken   = "0x2222000000000000000000000000000000002222"
	unpricedToken = "0x3333000000000000000000000000000000003333"
)

// fakeClassifier returns canned origin verdicts
type fakeClassifier struct {
	origins map[string]bool
}

func (f *fakeClassifier) Classify(ctx context.Context, addresses []string) map[string]bool {
	results := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		results[address] = f.origins[address]
	}
	return results
}

// fakeResolver returns canned quotes, NoQuote for unknown tokens
type fakeResolver struct {
	quotes map[string]types.PriceQuote
}

func (f *fakeResolver) Resolve(ctx context.Context, token string) types.PriceQuote {
	if quote, ok := f.quotes[token]; ok {
		return quote
	}
	return types.NoQuote()
}

type fakeRates struct {
	rate float64
}

func (f *fakeRates) Rate(ctx context.Context) float64 { return f.rate }

// fakeHistory serves canned transactions and transfers, with injectable errors
type fakeHistory struct {
	transactions   []types.Transaction
	transactionErr error
	transfers      map[string][]types.TokenTransferEvent
	transferErr    map[string]error
	walletSeen     string
}

func (f *fakeHistory) WalletTransactions(ctx context.Context, wallet string) ([]types.Transaction, error) {
	f.walletSeen = wallet
	return f.transactions, f.transactionErr
}

func (f *fakeHistory) TokenTransfers(ctx context.Context, wallet, token string) ([]types.TokenTransferEvent, error) {
	if err, ok := f.transferErr[token]; ok {
		return nil, err
	}
	return f.transfers[token], nil
}

func usdQuote(price float64) types.PriceQuote {
	return types.PriceQuote{Price: price, Unit: types.UnitUSD, Source: types.SourcePool, Timestamp: time.Now()}
}

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		Concurrency: 2,
		BatchDelay:  0,
		BlockOffset: 3,
		TimeWindow:  time.Minute,
	}
}

func balance(token, symbol string, raw string) types.TokenBalance {
	return types.TokenBalance{Token: token, Symbol: symbol, Decimals: 18, RawBalance: raw}
}

func TestAnalyzeWalletRejectsInvalidAddress(t *testing.T) {
	analyzer := NewAnalyzer(&fakeClassifier{}, &fakeResolver{}, &fakeRates{rate: 3000}, testAnalysisConfig())

	analytics, err := analyzer.AnalyzeWallet(context.Background(), "not-an-address", nil, &fakeHistory{})
	assert.Nil(t, analytics)
	require.Error(t, err)
	assert.True(t, internalerrors.IsInvalidInput(err))
}

func TestAnalyzeWalletEmptyHoldings(t *testing.T) {
	analyzer := NewAnalyzer(&fakeClassifier{}, &fakeResolver{}, &fakeRates{rate: 3000}, testAnalysisConfig())

	balances := []types.TokenBalance{
		balance(originToken, "ZERO", "0"), // Filtered: nothing held
	}
	analytics, err := analyzer.AnalyzeWallet(context.Background(), testWallet, balances, &fakeHistory{})
	require.NoError(t, err)
	require.NotNil(t, analytics)
	assert.Empty(t, analytics.Posts)
	assert.Equal(t, 0.0, analytics.TotalCurrentUSD)
}

func TestAnalyzeWalletHistoryFailureReturnsEmptyPortfolio(t *testing.T) {
	analyzer := NewAnalyzer(&fakeClassifier{}, &fakeResolver{}, &fakeRates{rate: 3000}, testAnalysisConfig())

	history := &fakeHistory{transactionErr: errors.New("provider timeout")}
	balances := []types.TokenBalance{balance(originToken, "POST", "100000000000000000000")}

	analytics, err := analyzer.AnalyzeWallet(context.Background(), testWallet, balances, history)
	require.Error(t, err)
	require.NotNil(t, analytics, "callers still get an empty portfolio with diagnostics")
	assert.Empty(t, analytics.Posts)
	require.Len(t, analytics.Diagnostics, 1)
	assert.Contains(t, analytics.Diagnostics[0], "transaction history unavailable")
}

func TestAnalyzeWalletFullPipeline(t *testing.T) {
	classifier := &fakeClassifier{origins: map[string]bool{originToken: true}}
	resolver := &fakeResolver{quotes: map[string]types.PriceQuote{
		originToken: usdQuote(0.05),
		boughtToken: usdQuote(0.00004),
	}}
	history := &fakeHistory{
		// The buy of boughtToken: 1000 tokens received, 0.01 native paid in
		// a same-block companion transaction.
		transactions: []types.Transaction{{
			Hash: "0xn1", From: "0xaaaa00000000000000000000000000000000aaaa", To: testTrader,
			Value: "10000000000000000", Timestamp: 1000, BlockNumber: 100,
		}},
		transfers: map[string][]types.TokenTransferEvent{
			boughtToken: {{
				Hash: "0xt1", Token: boughtToken,
				From: testTrader, To: "0xaaaa00000000000000000000000000000000aaaa",
				Value: "1000000000000000000000", Timestamp: 1000, BlockNumber: 100,
			}},
			// originToken has no transfer history: synthetic mint path
		},
	}

	analyzer := NewAnalyzer(classifier, resolver, &fakeRates{rate: 3000}, testAnalysisConfig())
	balances := []types.TokenBalance{
		balance(boughtToken, "MEME", "1000000000000000000000"),
		balance(originToken, "POST", "100000000000000000000"),
	}

	analytics, err := analyzer.AnalyzeWallet(context.Background(), testWallet, balances, history)
	require.NoError(t, err)
	require.NotNil(t, analytics)
	assert.Equal(t, "0xaaaa00000000000000000000000000000000aaaa", history.walletSeen, "wallet address is normalized")
	require.Len(t, analytics.Posts, 2)

	// Posts ordered by current value, highest first
	origin := analytics.Posts[0]
	bought := analytics.Posts[1]
	assert.Equal(t, originToken, origin.Token)
	assert.Equal(t, boughtToken, bought.Token)

	assert.True(t, origin.IsOriginToken)
	assert.Equal(t, 0.0, origin.InitialValueUSD)
	assert.Equal(t, 5.00, origin.CurrentValueUSD)
	assert.Equal(t, 0.0, origin.PnLPct)

	assert.False(t, bought.IsOriginToken)
	assert.Equal(t, 0.03, bought.AvgBuyPriceUSD)
	assert.Equal(t, 30.00, bought.InitialValueUSD)
	assert.Equal(t, 0.04, bought.CurrentValueUSD)
	assert.Equal(t, -29.96, bought.PnLUSD)

	assert.Equal(t, 30.00, analytics.TotalInvestedUSD)
	assert.Equal(t, 5.04, analytics.TotalCurrentUSD)
	assert.Equal(t, 1, analytics.ProfitableCount)
	assert.Equal(t, 1, analytics.LosingCount)
	assert.Equal(t, 1, analytics.OriginTokens.Count)
	assert.Equal(t, 1, analytics.PurchasedTokens.Count)
	assert.Empty(t, analytics.Diagnostics)
}

func TestAnalyzeWalletTransferFailureDegradesToMint(t *testing.T) {
	history := &fakeHistory{
		transactions: []types.Transaction{},
		transferErr:  map[string]error{originToken: errors.New("rate limited")},
	}
	resolver := &fakeResolver{quotes: map[string]types.PriceQuote{originToken: usdQuote(0.10)}}
	analyzer := NewAnalyzer(&fakeClassifier{}, resolver, &fakeRates{rate: 3000}, testAnalysisConfig())

	balances := []types.TokenBalance{balance(originToken, "POST", "50000000000000000000")}
	analytics, err := analyzer.AnalyzeWallet(context.Background(), testWallet, balances, history)
	require.NoError(t, err, "per-token failures do not fail the run")
	require.Len(t, analytics.Posts, 1)

	post := analytics.Posts[0]
	assert.Equal(t, 50.0, post.Balance)
	assert.Equal(t, 5.00, post.CurrentValueUSD, "the holding is still valued via the synthetic mint")

	require.Len(t, analytics.Diagnostics, 1)
	assert.Contains(t, analytics.Diagnostics[0], "transfer history unavailable")
}

func TestAnalyzeWalletMissingPriceIsDiagnosed(t *testing.T) {
	history := &fakeHistory{transactions: []types.Transaction{}}
	analyzer := NewAnalyzer(&fakeClassifier{}, &fakeResolver{}, &fakeRates{rate: 3000}, testAnalysisConfig())

	balances := []types.TokenBalance{balance(unpricedToken, "DUST", "1000000000000000000")}
	analytics, err := analyzer.AnalyzeWallet(context.Background(), testWallet, balances, history)
	require.NoError(t, err)
	require.Len(t, analytics.Posts, 1)

	assert.Equal(t, 0.0, analytics.Posts[0].CurrentValueUSD)
	assert.Equal(t, string(types.SourceNone), analytics.Posts[0].PriceSource)
	require.Len(t, analytics.Diagnostics, 1)
	assert.Contains(t, analytics.Diagnostics[0], "no price for")
}
