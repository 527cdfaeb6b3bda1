// Package main provides a CLI tool that analyzes a single wallet and prints
// the resulting portfolio analytics as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/config"
	"github.com/coinscan/internal/logging"
	"github.com/coinscan/internal/pool"
	"github.com/coinscan/internal/price"
	"github.com/coinscan/internal/provenance"
	"github.com/coinscan/internal/service"
)

func main() {
	var (
		wallet  = flag.String("wallet", "", "Wallet address to analyze (required)")
		timeout = flag.Duration("timeout", 3*time.Minute, "Overall analysis timeout")
		pretty  = flag.Bool("pretty", true, "Pretty-print the JSON output")
	)
	flag.Parse()

	if *wallet == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !adapter.ValidAddress(*wallet) {
		log.Fatalf("Invalid wallet address: %s", *wallet)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	provider, err := adapter.NewRPCProvider(cfg.Chain.RPCPrimary, cfg.Chain.RPCSecondary)
	if err != nil {
		log.Fatalf("Failed to create RPC provider: %v", err)
	}
	chainReader, err := adapter.NewEthereumChainReader(provider, 10, cfg.Chain.CallTimeout)
	if err != nil {
		log.Fatalf("Failed to create chain reader: %v", err)
	}

	locator := pool.NewLocator(chainReader, cfg.Platform, cfg.Analysis.ScanWindowBlocks)
	classifier := provenance.NewClassifier(chainReader, locator, provenance.NewMemoryCache(), cfg.Platform, cfg.Analysis.MaxRetries)

	dex := adapter.NewDexScreenerClient(cfg.Price.DexScreenerBaseURL, cfg.Chain.Slug, cfg.Price.HTTPTimeout)
	market := adapter.NewMarketClient(cfg.Price.MarketBaseURL, cfg.Chain.Slug, cfg.Price.HTTPTimeout)
	rates := price.NewNativeRate(market, cfg.Price.NativeCoinID, cfg.Price.NativeUSDFallback)
	resolver := price.NewResolver(locator, dex, market, rates, cfg.Price.HTTPTimeout)

	analyzer := service.NewAnalyzer(classifier, resolver, rates, cfg.Analysis)
	history := adapter.NewAlchemyHistoryProvider(provider, cfg.Chain.CallTimeout*2)
	balanceProvider := adapter.NewAlchemyBalanceProvider(provider, cfg.Chain.CallTimeout*2)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	balances, err := balanceProvider.TokenBalances(ctx, *wallet)
	if err != nil {
		log.Fatalf("Failed to fetch token balances: %v", err)
	}

	analytics, err := analyzer.AnalyzeWallet(ctx, *wallet, balances, history)
	if err != nil {
		log.Printf("Analysis completed with errors: %v", err)
	}
	if analytics == nil {
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	if *pretty {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(analytics); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Analyzed %d tokens in wallet %s\n", len(analytics.Posts), analytics.Wallet)
}
