// Package provenance decides whether a token contract was deployed by the
// posting platform. Classification is tiered: a bytecode fingerprint of the
// platform's minimal-proxy clone, a direct platformReferrer() attribute read,
// and finally verification through the token's liquidity pool. A bytecode
// match alone is sufficient; later tiers refine confidence but a timeout or
// error in them never reverses a bytecode positive. This deliberately favors
// false positives over false negatives when verification sources are down.
package provenance

import (
	"bytes"
	"context"
	"encoding/hex"
	"log"
	"strings"
	"sync"

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/config"
	"github.com/coinscan/internal/retry"
	"github.com/coinscan/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Minimal-proxy (EIP-1167) runtime bytecode: prefix + implementation + suffix.
// The implementation address is embedded at bytes [10:30].
var (
	cloneBytecodePrefix, _ = hex.DecodeString("363d3d373d3d3d363d73")
	cloneBytecodeSuffix, _ = hex.DecodeString("5af43d82803e903d91602b57fd5bf3")

	platformReferrerSelector = crypto.Keccak256([]byte("platformReferrer()"))[:4]
)

// PoolVerifier locates the pool backing a token for tier-3 verification
type PoolVerifier interface {
	Locate(ctx context.Context, token string) (*types.PoolState, error)
}

// Classifier labels token contracts as platform-origin or not
type Classifier struct {
	reader    adapter.ChainReader
	pools     PoolVerifier
	cache     Cache
	platform  config.PlatformConfig
	retryCfg  *retry.Config
	cloneFull []byte // Exact clone bytecode with the platform implementation embedded
}

// NewClassifier creates a provenance classifier. cache must not be nil; use
// NewMemoryCache for single-process deployments.
func NewClassifier(reader adapter.ChainReader, pools PoolVerifier, cache Cache, platform config.PlatformConfig, maxRetries int) *Classifier {
	retryCfg := retry.DefaultConfig()
	if maxRetries > 0 {
		retryCfg.MaxAttempts = maxRetries
	}

	var cloneFull []byte
	if platform.ImplementationAddress != "" {
		impl := common.HexToAddress(platform.ImplementationAddress)
		cloneFull = append(append(append([]byte{}, cloneBytecodePrefix...), impl.Bytes()...), cloneBytecodeSuffix...)
	}

	return &Classifier{
		reader:    reader,
		pools:     pools,
		cache:     cache,
		platform:  platform,
		retryCfg:  retryCfg,
		cloneFull: cloneFull,
	}
}

// classifyFanOut bounds concurrent per-address classification. Chain reads
// dominate classification latency and the reader paces its own requests, so
// a small bound overlaps the I/O without bursting the RPC endpoint.
const classifyFanOut = 4

// Classify labels each address as platform-origin or not. Addresses are
// classified concurrently under a small bound; per-address failures are
// isolated: an address whose every tier stays inconclusive is reported
// negative for this run but left uncached so a later run can reclassify it.
func (c *Classifier) Classify(ctx context.Context, addresses []string) map[string]bool {
	results := make(map[string]bool, len(addresses))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, classifyFanOut)
	seen := make(map[string]bool, len(addresses))

	for _, address := range addresses {
		address = strings.ToLower(address)
		if seen[address] {
			continue
		}
		seen[address] = true

		wg.Add(1)
		sem <- struct{}{}
		go func(address string) {
			defer wg.Done()
			defer func() { <-sem }()

			if value, found, err := c.cache.Get(ctx, address); err == nil && found {
				mu.Lock()
				results[address] = value
				mu.Unlock()
				return
			}

			verdict, conclusive := c.classifyOne(ctx, address)
			mu.Lock()
			results[address] = verdict
			mu.Unlock()

			if conclusive {
				if err := c.cache.Set(ctx, address, verdict); err != nil {
					log.Printf("[Provenance] Failed to cache classification for %s: %v", address, err)
				}
			}
		}(address)
	}
	wg.Wait()

	return results
}

// classifyOne runs the tier chain for a single address. The second return
// value reports whether the verdict is conclusive (cacheable) as opposed to
// a default-negative after exhausted retries.
func (c *Classifier) classifyOne(ctx context.Context, address string) (verdict, conclusive bool) {
	if !adapter.ValidAddress(address) {
		return false, true
	}

	// Tier 1: bytecode fingerprint
	match, err := c.matchBytecode(ctx, address)
	if err == nil {
		if match {
			return true, true
		}
	} else {
		log.Printf("[Provenance] Bytecode read failed for %s: %v", address, err)
	}

	// Tier 2: direct platformReferrer() read. A call failure usually means
	// the method is absent; that is inconclusive, not negative.
	referrerMatch, tier2Conclusive := c.matchReferrer(ctx, common.HexToAddress(address))
	if tier2Conclusive {
		return referrerMatch, true
	}

	// Tier 3: pool-based verification. The origin token may be on either
	// side of its pool, so both currencies are checked.
	state, locErr := c.pools.Locate(ctx, address)
	if locErr != nil || state == nil {
		// All tiers inconclusive: negative for this run, not cached
		return false, false
	}
	for _, currency := range []string{state.Key.Currency0, state.Key.Currency1} {
		if match, ok := c.matchReferrer(ctx, common.HexToAddress(currency)); ok && match {
			return true, true
		}
	}
	return false, true
}

// matchBytecode compares deployed bytecode against the known clone bytes and
// the minimal-proxy prefix with the embedded implementation address.
func (c *Classifier) matchBytecode(ctx context.Context, address string) (bool, error) {
	var code []byte
	err := retry.WithExponentialBackoff(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		var readErr error
		code, readErr = c.reader.GetBytecode(ctx, common.HexToAddress(address))
		return readErr
	})
	if err != nil {
		return false, err
	}
	if len(code) == 0 {
		return false, nil
	}

	if len(c.cloneFull) > 0 && bytes.Equal(code, c.cloneFull) {
		return true, nil
	}

	if bytes.HasPrefix(code, cloneBytecodePrefix) && len(code) >= len(cloneBytecodePrefix)+20 {
		embedded := common.BytesToAddress(code[len(cloneBytecodePrefix) : len(cloneBytecodePrefix)+20])
		if c.platform.ImplementationAddress != "" &&
			strings.EqualFold(embedded.Hex(), c.platform.ImplementationAddress) {
			return true, nil
		}
	}
	return false, nil
}

// matchReferrer calls platformReferrer() on a contract and compares the
// result against the platform's well-known referrer, case-insensitively.
// Returns (match, conclusive); a failed call is inconclusive.
func (c *Classifier) matchReferrer(ctx context.Context, contract common.Address) (bool, bool) {
	out, err := c.reader.CallViewMethod(ctx, contract, append([]byte{}, platformReferrerSelector...))
	if err != nil || len(out) < 32 {
		return false, false
	}

	referrer := common.BytesToAddress(out[12:32])
	return strings.EqualFold(referrer.Hex(), c.platform.ReferrerAddress), true
}
