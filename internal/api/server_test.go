package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coinscan/internal/adapter"
	internalerrors "github.com/coinscan/internal/errors"
	"github.com/coinscan/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0xaaaa00000000000000000000000000000000aaaa"

// fakeAnalyzer returns a canned analysis result
type fakeAnalyzer struct {
	analytics *types.PortfolioAnalytics
	err       error
	balances  []types.TokenBalance
	calls     int
}

func (f *fakeAnalyzer) AnalyzeWallet(ctx context.Context, wallet string, balances []types.TokenBalance, history adapter.HistoryProvider) (*types.PortfolioAnalytics, error) {
	f.calls++
	f.balances = balances
	return f.analytics, f.err
}

// fakeBalances serves canned token balances
type fakeBalances struct {
	balances []types.TokenBalance
	err      error
	calls    int
}

func (f *fakeBalances) TokenBalances(ctx context.Context, wallet string) ([]types.TokenBalance, error) {
	f.calls++
	return f.balances, f.err
}

// fakeHistoryProvider satisfies the interface; handlers never call it directly
type fakeHistoryProvider struct{}

func (f *fakeHistoryProvider) WalletTransactions(ctx context.Context, wallet string) ([]types.Transaction, error) {
	return nil, nil
}

func (f *fakeHistoryProvider) TokenTransfers(ctx context.Context, wallet, token string) ([]types.TokenTransferEvent, error) {
	return nil, nil
}

func newTestServer(analyzer *fakeAnalyzer, balances *fakeBalances) *Server {
	return NewServer(
		&ServerConfig{Host: "localhost", Port: "0", AnalyzeTimeout: time.Minute},
		analyzer,
		balances,
		&fakeHistoryProvider{},
		nil,
	)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeAnalyzer{}, &fakeBalances{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAnalyzeRejectsInvalidAddress(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	server := newTestServer(analyzer, &fakeBalances{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets/bogus/analyze", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_ADDRESS", body.Error.Code)
	assert.Equal(t, 0, analyzer.calls)
}

func TestAnalyzeWithProvidedBalances(t *testing.T) {
	analyzer := &fakeAnalyzer{analytics: &types.PortfolioAnalytics{Wallet: testAddress, TotalCurrentUSD: 5.04}}
	balances := &fakeBalances{}
	server := newTestServer(analyzer, balances)

	payload, err := json.Marshal(analyzeRequest{Balances: []types.TokenBalance{
		{Token: "0x1111000000000000000000000000000000001111", Symbol: "POST", Decimals: 18, RawBalance: "100"},
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets/"+testAddress+"/analyze", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, balances.calls, "provided balances skip the provider")
	require.Len(t, analyzer.balances, 1)

	var body types.PortfolioAnalytics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5.04, body.TotalCurrentUSD)
}

func TestAnalyzeFetchesBalancesWhenOmitted(t *testing.T) {
	analyzer := &fakeAnalyzer{analytics: &types.PortfolioAnalytics{Wallet: testAddress}}
	balances := &fakeBalances{balances: []types.TokenBalance{
		{Token: "0x2222000000000000000000000000000000002222", RawBalance: "10"},
	}}
	server := newTestServer(analyzer, balances)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets/"+testAddress+"/analyze", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, balances.calls)
	require.Len(t, analyzer.balances, 1)
}

func TestAnalyzeBalanceProviderFailure(t *testing.T) {
	server := newTestServer(&fakeAnalyzer{}, &fakeBalances{err: errors.New("upstream down")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets/"+testAddress+"/analyze", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PROVIDER_ERROR", body.Error.Code)
}

func TestAnalyzePartialResultSurfacesBodyWithErrorStatus(t *testing.T) {
	// History failure yields an empty portfolio with diagnostics plus an error
	analyzer := &fakeAnalyzer{
		analytics: &types.PortfolioAnalytics{
			Wallet:      testAddress,
			Diagnostics: []string{"transaction history unavailable: timeout"},
		},
		err: internalerrors.NewProviderError("history", errors.New("timeout")),
	}
	server := newTestServer(analyzer, &fakeBalances{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/wallets/"+testAddress+"/analyze", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body types.PortfolioAnalytics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Diagnostics, 1, "diagnostics reach the caller despite the error status")
}

func TestSnapshotsDisabled(t *testing.T) {
	server := newTestServer(&fakeAnalyzer{}, &fakeBalances{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallets/"+testAddress+"/snapshots", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SNAPSHOTS_DISABLED", body.Error.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	server := newTestServer(&fakeAnalyzer{}, &fakeBalances{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"), "caller request ids are echoed back")
}
