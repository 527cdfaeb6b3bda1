// Package service orchestrates the wallet analysis pipeline: provenance
// classification, price resolution, transaction reconstruction, and PnL
// aggregation. Each token is processed independently; a failure on one token
// degrades that token's result without failing the run.
package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/config"
	"github.com/coinscan/internal/errors"
	"github.com/coinscan/internal/pnl"
	"github.com/coinscan/internal/reconstruct"
	"github.com/coinscan/internal/types"
)

// Classifier labels token contracts as platform-origin or not
type Classifier interface {
	Classify(ctx context.Context, addresses []string) map[string]bool
}

// PriceResolver produces a best-effort USD quote for a token
type PriceResolver interface {
	Resolve(ctx context.Context, token string) types.PriceQuote
}

// RateSource supplies the native/USD conversion rate
type RateSource interface {
	Rate(ctx context.Context) float64
}

// Analyzer runs the full analysis pipeline for a wallet
type Analyzer struct {
	classifier    Classifier
	resolver      PriceResolver
	rates         RateSource
	reconstructor *reconstruct.Reconstructor
	calculator    *pnl.Calculator
	analysisCfg   config.AnalysisConfig
}

// NewAnalyzer creates an analyzer over the given pipeline stages
func NewAnalyzer(classifier Classifier, resolver PriceResolver, rates RateSource, analysisCfg config.AnalysisConfig) *Analyzer {
	return &Analyzer{
		classifier:    classifier,
		resolver:      resolver,
		rates:         rates,
		reconstructor: reconstruct.NewReconstructor(analysisCfg.BlockOffset, analysisCfg.TimeWindow),
		calculator:    pnl.NewCalculator(),
		analysisCfg:   analysisCfg,
	}
}

// AnalyzeWallet computes portfolio analytics for a wallet over its current
// token balances. History supplies the wallet's native transactions and
// per-token transfer events. Per-token provider failures are recorded as
// diagnostics on the result; a failure to fetch the wallet's native
// transaction list fails the whole run with an empty portfolio, since no
// reconstruction is possible without it.
func (a *Analyzer) AnalyzeWallet(ctx context.Context, wallet string, balances []types.TokenBalance, history adapter.HistoryProvider) (*types.PortfolioAnalytics, error) {
	if !adapter.ValidAddress(wallet) {
		return nil, errors.NewInvalidAddressError(wallet)
	}
	wallet = strings.ToLower(wallet)

	held := make([]types.TokenBalance, 0, len(balances))
	for _, balance := range balances {
		if balance.RawAmount().Sign() > 0 && adapter.ValidAddress(balance.Token) {
			held = append(held, balance)
		}
	}
	log.Printf("[Analyzer] Analyzing wallet %s: %d held tokens", wallet, len(held))

	if len(held) == 0 {
		empty := a.calculator.ComputePortfolioAnalytics(wallet, nil, nil)
		return &empty, nil
	}

	transactions, err := history.WalletTransactions(ctx, wallet)
	if err != nil {
		empty := a.calculator.ComputePortfolioAnalytics(wallet, nil, []string{
			fmt.Sprintf("transaction history unavailable: %v", err),
		})
		return &empty, errors.NewProviderError("history", err)
	}

	tokens := make([]string, len(held))
	for i, balance := range held {
		tokens[i] = strings.ToLower(balance.Token)
	}
	originByToken := a.classifier.Classify(ctx, tokens)
	nativeUSD := a.rates.Rate(ctx)

	posts := make([]types.PostAnalytics, 0, len(held))
	var diagnostics []string
	var mu sync.Mutex

	// Bounded fan-out: tokens are processed in fixed-width batches with a
	// pause between batches to stay under provider rate limits. Degraded
	// mode halves the width and doubles the pause.
	width := a.analysisCfg.EffectiveConcurrency()
	if width < 1 {
		width = 1
	}
	delay := a.analysisCfg.EffectiveBatchDelay()

	for start := 0; start < len(held); start += width {
		end := start + width
		if end > len(held) {
			end = len(held)
		}

		var wg sync.WaitGroup
		for _, balance := range held[start:end] {
			wg.Add(1)
			go func(balance types.TokenBalance) {
				defer wg.Done()

				post, diags := a.analyzeToken(ctx, wallet, balance, transactions, originByToken, nativeUSD, history)

				mu.Lock()
				posts = append(posts, post)
				diagnostics = append(diagnostics, diags...)
				mu.Unlock()
			}(balance)
		}
		wg.Wait()

		if end < len(held) && delay > 0 {
			select {
			case <-ctx.Done():
				mu.Lock()
				diagnostics = append(diagnostics, fmt.Sprintf("analysis cancelled after %d of %d tokens: %v", len(posts), len(held), ctx.Err()))
				mu.Unlock()
				result := a.finish(wallet, posts, diagnostics)
				return &result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	result := a.finish(wallet, posts, diagnostics)
	return &result, nil
}

// analyzeToken runs price resolution, reconstruction, and PnL for one token
func (a *Analyzer) analyzeToken(ctx context.Context, wallet string, balance types.TokenBalance, transactions []types.Transaction, originByToken map[string]bool, nativeUSD float64, history adapter.HistoryProvider) (types.PostAnalytics, []string) {
	token := strings.ToLower(balance.Token)
	var diags []string

	quote := a.resolver.Resolve(ctx, token)
	if quote.Source == types.SourceNone {
		diags = append(diags, fmt.Sprintf("no price for %s", token))
	}

	transfers, err := history.TokenTransfers(ctx, wallet, token)
	if err != nil {
		// Reconstruction degrades to the synthetic-mint path
		log.Printf("[Analyzer] Transfer history failed for %s: %v", token, err)
		diags = append(diags, fmt.Sprintf("transfer history unavailable for %s: %v", token, err))
		transfers = nil
	}

	events := a.reconstructor.Reconstruct(wallet, token, transfers, transactions, balance.RawAmount())

	post := a.calculator.ComputePostAnalytics(pnl.PostInput{
		Token:     token,
		Symbol:    balance.Symbol,
		Decimals:  balance.Decimals,
		Balance:   balance.RawAmount(),
		Events:    events,
		Quote:     quote,
		IsOrigin:  originByToken[token],
		NativeUSD: nativeUSD,
	})
	return post, diags
}

// finish orders posts by current value, highest first, and aggregates
func (a *Analyzer) finish(wallet string, posts []types.PostAnalytics, diagnostics []string) types.PortfolioAnalytics {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CurrentValueUSD != posts[j].CurrentValueUSD {
			return posts[i].CurrentValueUSD > posts[j].CurrentValueUSD
		}
		return posts[i].Token < posts[j].Token
	})
	sort.Strings(diagnostics)

	result := a.calculator.ComputePortfolioAnalytics(wallet, posts, diagnostics)
	log.Printf("[Analyzer] Wallet %s: %d posts, invested %.2f, current %.2f, pnl %.2f",
		wallet, len(posts), result.TotalInvestedUSD, result.TotalCurrentUSD, result.TotalPnLUSD)
	return result
}
