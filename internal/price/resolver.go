// Package price produces a best-effort USD price for a token through an
// ordered fallback chain: on-chain pool state, the DEX pair aggregator, then
// the market-data aggregator. Strategies share a uniform attempt signature
// and are iterated by the resolver; an error or unusable quote from one
// strategy moves the chain along, never up to the caller.
package price

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/circuitbreaker"
	"github.com/coinscan/internal/errors"
	"github.com/coinscan/internal/pool"
	"github.com/coinscan/internal/types"
)

// Strategy is one price source in the fallback chain
type Strategy interface {
	// Source identifies the strategy in resolved quotes
	Source() types.PriceSource

	// Attempt produces a quote or an error. Errors are treated as
	// inconclusive and advance the chain.
	Attempt(ctx context.Context, token string) (types.PriceQuote, error)
}

// Resolver runs the strategy chain with per-call timeouts. Each strategy is
// guarded by its own circuit breaker so a dead source is skipped outright
// instead of costing its timeout on every token.
type Resolver struct {
	strategies  []Strategy
	breakers    map[types.PriceSource]*circuitbreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewResolver builds the default chain: pool price, DEX pair aggregator,
// market aggregator.
func NewResolver(locator *pool.Locator, dex *adapter.DexScreenerClient, market *adapter.MarketClient, rates *NativeRate, callTimeout time.Duration) *Resolver {
	if callTimeout <= 0 {
		callTimeout = 8 * time.Second
	}
	return newResolver(callTimeout,
		&poolStrategy{locator: locator, rates: rates},
		&dexScreenerStrategy{client: dex},
		&marketStrategy{client: market},
	)
}

// NewResolverWithStrategies builds a resolver over an explicit chain
func NewResolverWithStrategies(callTimeout time.Duration, strategies ...Strategy) *Resolver {
	if callTimeout <= 0 {
		callTimeout = 8 * time.Second
	}
	return newResolver(callTimeout, strategies...)
}

func newResolver(callTimeout time.Duration, strategies ...Strategy) *Resolver {
	breakers := make(map[types.PriceSource]*circuitbreaker.CircuitBreaker, len(strategies))
	for _, strategy := range strategies {
		breakers[strategy.Source()] = circuitbreaker.New(string(strategy.Source()), nil)
	}
	return &Resolver{strategies: strategies, breakers: breakers, callTimeout: callTimeout}
}

// Resolve returns the first usable quote the chain produces, or the
// canonical no-price quote when every source declines. A quote with a
// non-positive or non-finite price never escapes this method.
func (r *Resolver) Resolve(ctx context.Context, token string) types.PriceQuote {
	for _, strategy := range r.strategies {
		breaker := r.breakers[strategy.Source()]
		if !breaker.Allow() {
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		quote, err := strategy.Attempt(attemptCtx, token)
		cancel()

		if err != nil {
			// Not-found is a per-token answer, not a source failure
			if !errors.IsNotFound(err) && !errors.IsInvalidInput(err) {
				breaker.RecordFailure()
			}
			log.Printf("[Price] %s strategy inconclusive for %s: %v", strategy.Source(), token, err)
			continue
		}
		breaker.RecordSuccess()
		if !quote.Usable() {
			continue
		}
		quote.Source = strategy.Source()
		quote.Unit = types.UnitUSD
		quote.Timestamp = time.Now().UTC()
		return quote
	}

	return types.NoQuote()
}

// NativeRate resolves the native-currency/USD rate, memoized briefly so one
// analysis run reuses a single rate, with a fixed fallback when the market
// aggregator is unreachable.
type NativeRate struct {
	market   *adapter.MarketClient
	coinID   string
	fallback float64
	ttl      time.Duration

	mu         sync.Mutex
	rate       float64
	resolvedAt time.Time
}

// NewNativeRate creates a native/USD rate source
func NewNativeRate(market *adapter.MarketClient, coinID string, fallback float64) *NativeRate {
	return &NativeRate{
		market:   market,
		coinID:   coinID,
		fallback: fallback,
		ttl:      time.Minute,
	}
}

// Rate returns the current native/USD rate, never zero
func (n *NativeRate) Rate(ctx context.Context) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.rate > 0 && time.Since(n.resolvedAt) < n.ttl {
		return n.rate
	}

	rate, err := n.market.NativeUSD(ctx, n.coinID)
	if err != nil || rate <= 0 {
		log.Printf("[Price] Native/USD lookup failed (%v), using fallback %.2f", err, n.fallback)
		rate = n.fallback
	}
	n.rate = rate
	n.resolvedAt = time.Now()
	return rate
}

// poolStrategy derives a USD price from on-chain pool state
type poolStrategy struct {
	locator *pool.Locator
	rates   *NativeRate
}

func (s *poolStrategy) Source() types.PriceSource { return types.SourcePool }

func (s *poolStrategy) Attempt(ctx context.Context, token string) (types.PriceQuote, error) {
	state, err := s.locator.Locate(ctx, token)
	if err != nil {
		return types.PriceQuote{}, err
	}

	nativePrice, err := s.locator.TokenPriceInNative(ctx, state, token)
	if err != nil {
		return types.PriceQuote{}, err
	}

	return types.PriceQuote{Price: nativePrice * s.rates.Rate(ctx)}, nil
}

// dexScreenerStrategy quotes from the DEX pair aggregator, preferring the
// pair with the highest USD liquidity
type dexScreenerStrategy struct {
	client *adapter.DexScreenerClient
}

func (s *dexScreenerStrategy) Source() types.PriceSource { return types.SourceDexScreener }

func (s *dexScreenerStrategy) Attempt(ctx context.Context, token string) (types.PriceQuote, error) {
	price, found, err := s.client.BestUSDPrice(ctx, token)
	if err != nil {
		return types.PriceQuote{}, err
	}
	if !found {
		return types.PriceQuote{}, nil // Unusable, chain continues
	}
	return types.PriceQuote{Price: price}, nil
}

// marketStrategy quotes from the market-data aggregator by contract address
type marketStrategy struct {
	client *adapter.MarketClient
}

func (s *marketStrategy) Source() types.PriceSource { return types.SourceMarket }

func (s *marketStrategy) Attempt(ctx context.Context, token string) (types.PriceQuote, error) {
	price, found, err := s.client.TokenPriceUSD(ctx, token)
	if err != nil {
		return types.PriceQuote{}, err
	}
	if !found {
		return types.PriceQuote{}, nil
	}
	return types.PriceQuote{Price: price}, nil
}
