// Package pool locates the liquidity pool backing a token and decodes its
// on-chain price state. Pools follow the hooked-singleton AMM design: a pool
// is identified by the keccak hash of its packed key (currency pair, fee,
// tick spacing, hook address) and its state is read through a state-view lens
// contract.
package pool

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/coinscan/internal/adapter"
	"github.com/coinscan/internal/config"
	scanerrors "github.com/coinscan/internal/errors"
	"github.com/coinscan/internal/types"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// Initialize(bytes32 indexed id, address indexed currency0, address indexed currency1,
	// uint24 fee, int24 tickSpacing, address hooks, uint160 sqrtPriceX96, int24 tick)
	initializeEventSig = crypto.Keccak256Hash([]byte("Initialize(bytes32,address,address,uint24,int24,address,uint160,int24)"))

	getSlot0Selector     = crypto.Keccak256([]byte("getSlot0(bytes32)"))[:4]
	getLiquiditySelector = crypto.Keccak256([]byte("getLiquidity(bytes32)"))[:4]
	decimalsSelector     = crypto.Keccak256([]byte("decimals()"))[:4]

	poolKeyArguments abi.Arguments
)

func init() {
	addressType, _ := abi.NewType("address", "", nil)
	uint24Type, _ := abi.NewType("uint24", "", nil)
	int24Type, _ := abi.NewType("int24", "", nil)
	poolKeyArguments = abi.Arguments{
		{Type: addressType},
		{Type: addressType},
		{Type: uint24Type},
		{Type: int24Type},
		{Type: addressType},
	}
}

// poolConfig is one known (hooks, fee, tickSpacing) combination tried against
// the wrapped-native pairing before falling back to the event scan.
type poolConfig struct {
	Hooks       string
	Fee         uint32
	TickSpacing int32
}

// Locator finds the AMM pool backing a token and reads its state
type Locator struct {
	reader       adapter.ChainReader
	platform     config.PlatformConfig
	knownConfigs []poolConfig
	scanWindow   uint64 // Blocks of Initialize history searched in the fallback
	scanChunk    uint64 // Log query chunk size
}

// NewLocator creates a pool locator for the configured platform
func NewLocator(reader adapter.ChainReader, platform config.PlatformConfig, scanWindow uint64) *Locator {
	configs := []poolConfig{}
	if platform.CreatorHookAddress != "" {
		configs = append(configs, poolConfig{Hooks: platform.CreatorHookAddress, Fee: 30000, TickSpacing: 200})
	}
	if platform.ContentHookAddress != "" {
		configs = append(configs, poolConfig{Hooks: platform.ContentHookAddress, Fee: 30000, TickSpacing: 200})
	}
	// Hookless fallbacks for tokens migrated to vanilla pools
	configs = append(configs,
		poolConfig{Hooks: zeroAddress, Fee: 3000, TickSpacing: 60},
		poolConfig{Hooks: zeroAddress, Fee: 10000, TickSpacing: 200},
	)

	if scanWindow == 0 {
		scanWindow = 1_000_000
	}

	return &Locator{
		reader:       reader,
		platform:     platform,
		knownConfigs: configs,
		scanWindow:   scanWindow,
		scanChunk:    100_000,
	}
}

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ComputePoolID returns the deterministic pool identifier for a key:
// keccak256 of the ABI-encoded (currency0, currency1, fee, tickSpacing, hooks).
func ComputePoolID(key types.PoolKey) (common.Hash, error) {
	packed, err := poolKeyArguments.Pack(
		common.HexToAddress(key.Currency0),
		common.HexToAddress(key.Currency1),
		big.NewInt(int64(key.Fee)),
		big.NewInt(int64(key.TickSpacing)),
		common.HexToAddress(key.Hooks),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack pool key: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}

// Locate finds the pool backing token. It first tries the known platform
// configurations against the wrapped-native pairing in both currency
// orderings, then falls back to scanning recent pool-creation events.
// A missing pool, an uninitialized pool, or a read error all resolve to a
// not_found result; this method never surfaces a hard provider error.
func (l *Locator) Locate(ctx context.Context, token string) (*types.PoolState, error) {
	if !adapter.ValidAddress(token) {
		return nil, scanerrors.NewInvalidAddressError(token)
	}
	token = strings.ToLower(token)
	wrapped := strings.ToLower(l.platform.WrappedNativeAddress)

	for _, cfg := range l.knownConfigs {
		for _, ordered := range orderings(token, wrapped) {
			key := types.PoolKey{
				Currency0:   ordered[0],
				Currency1:   ordered[1],
				Fee:         cfg.Fee,
				TickSpacing: cfg.TickSpacing,
				Hooks:       strings.ToLower(cfg.Hooks),
			}
			state, err := l.readPoolState(ctx, key)
			if err != nil {
				continue // Read errors degrade to "try the next configuration"
			}
			if state != nil {
				log.Printf("[Pool] Located pool for %s via known config (hooks=%s fee=%d)", token, cfg.Hooks, cfg.Fee)
				return state, nil
			}
		}
	}

	state, err := l.scanForPool(ctx, token)
	if err == nil && state != nil {
		return state, nil
	}
	return nil, scanerrors.NewNotFoundError("pool", token)
}

// orderings yields both currency orderings of a pair. The canonical ordering
// sorts currencies numerically, but callers cannot assume the token side.
func orderings(a, b string) [][2]string {
	return [][2]string{{a, b}, {b, a}}
}

// readPoolState reads slot0 and liquidity for a key. Returns (nil, nil) when
// the pool does not exist or is uninitialized (liquidity == 0).
func (l *Locator) readPoolState(ctx context.Context, key types.PoolKey) (*types.PoolState, error) {
	poolID, err := ComputePoolID(key)
	if err != nil {
		return nil, err
	}
	stateView := common.HexToAddress(l.platform.StateViewAddress)

	liquidityData := append(append([]byte{}, getLiquiditySelector...), poolID.Bytes()...)
	liquidityOut, err := l.reader.CallViewMethod(ctx, stateView, liquidityData)
	if err != nil {
		return nil, err
	}
	if len(liquidityOut) < 32 {
		return nil, nil
	}
	liquidity := new(big.Int).SetBytes(liquidityOut[:32])
	if liquidity.Sign() == 0 {
		return nil, nil
	}

	slot0Data := append(append([]byte{}, getSlot0Selector...), poolID.Bytes()...)
	slot0Out, err := l.reader.CallViewMethod(ctx, stateView, slot0Data)
	if err != nil {
		return nil, err
	}
	if len(slot0Out) < 64 {
		return nil, nil
	}
	sqrtPrice := new(big.Int).SetBytes(slot0Out[:32])
	if sqrtPrice.Sign() == 0 {
		return nil, nil
	}
	tick := decodeInt24(slot0Out[32:64])

	return &types.PoolState{
		Key:       key,
		PoolID:    poolID.Hex(),
		SqrtPrice: sqrtPrice,
		Tick:      tick,
		Liquidity: liquidity,
		Origin:    l.classifyHooks(key.Hooks),
	}, nil
}

// scanForPool searches recent Initialize events for any pool whose currency
// pair includes the token, preferring recognized hook addresses.
func (l *Locator) scanForPool(ctx context.Context, token string) (*types.PoolState, error) {
	head, err := l.reader.GetCurrentBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	fromBlock := uint64(0)
	if head > l.scanWindow {
		fromBlock = head - l.scanWindow
	}

	manager := common.HexToAddress(l.platform.PoolManagerAddress)
	tokenTopic := common.HexToHash(common.HexToAddress(token).Hex())

	var candidates []types.PoolKey
	// Walk backwards so newer pools are evaluated first
	for to := head; to > fromBlock; {
		from := fromBlock
		if to > l.scanChunk && to-l.scanChunk > fromBlock {
			from = to - l.scanChunk
		}

		logs, err := l.reader.GetLogsInRange(ctx, manager, initializeEventSig, from, to)
		if err != nil {
			// Chunk read failures shrink the effective window rather than failing the scan
			log.Printf("[Pool] Initialize scan chunk %d-%d failed: %v", from, to, err)
			break
		}

		for _, entry := range logs {
			if len(entry.Topics) < 4 || len(entry.Data) < 160 {
				continue
			}
			if entry.Topics[2] != tokenTopic && entry.Topics[3] != tokenTopic {
				continue
			}
			candidates = append(candidates, types.PoolKey{
				Currency0:   strings.ToLower(common.BytesToAddress(entry.Topics[2].Bytes()).Hex()),
				Currency1:   strings.ToLower(common.BytesToAddress(entry.Topics[3].Bytes()).Hex()),
				Fee:         uint32(new(big.Int).SetBytes(entry.Data[:32]).Uint64()),
				TickSpacing: decodeInt24(entry.Data[32:64]),
				Hooks:       strings.ToLower(common.BytesToAddress(entry.Data[64:96]).Hex()),
			})
		}

		if from == fromBlock {
			break
		}
		to = from - 1
	}

	if len(candidates) == 0 {
		return nil, scanerrors.NewNotFoundError("pool", token)
	}

	// Recognized hooks first; the scan order already prefers newer pools within a group
	sort.SliceStable(candidates, func(i, j int) bool {
		return l.hookRank(candidates[i].Hooks) < l.hookRank(candidates[j].Hooks)
	})

	for _, key := range candidates {
		state, err := l.readPoolState(ctx, key)
		if err != nil {
			continue
		}
		if state != nil {
			log.Printf("[Pool] Located pool for %s via event scan (%d candidates)", token, len(candidates))
			return state, nil
		}
	}
	return nil, scanerrors.NewNotFoundError("pool", token)
}

func (l *Locator) hookRank(hooks string) int {
	switch l.classifyHooks(hooks) {
	case types.OriginCreatorCoin:
		return 0
	case types.OriginContentCoin:
		return 1
	default:
		return 2
	}
}

func (l *Locator) classifyHooks(hooks string) types.PoolOrigin {
	switch {
	case strings.EqualFold(hooks, l.platform.CreatorHookAddress) && l.platform.CreatorHookAddress != "":
		return types.OriginCreatorCoin
	case strings.EqualFold(hooks, l.platform.ContentHookAddress) && l.platform.ContentHookAddress != "":
		return types.OriginContentCoin
	default:
		return types.OriginUnknown
	}
}

// TokenPriceInNative decodes the pool's instantaneous exchange rate into the
// token's price denominated in the pool's other currency. The caller passes
// the token side; the other currency is assumed to be the quote currency.
func (l *Locator) TokenPriceInNative(ctx context.Context, state *types.PoolState, token string) (float64, error) {
	dec0, err := l.readDecimals(ctx, state.Key.Currency0)
	if err != nil {
		return 0, err
	}
	dec1, err := l.readDecimals(ctx, state.Key.Currency1)
	if err != nil {
		return 0, err
	}

	tokenIsCurrency0 := strings.EqualFold(state.Key.Currency0, token)
	price := DecodeSqrtPrice(state.SqrtPrice, dec0, dec1, tokenIsCurrency0)
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return 0, fmt.Errorf("non-finite decoded price for pool %s", state.PoolID)
	}
	return price, nil
}

// DecodeSqrtPrice converts the fixed-point square-root price into the price of
// one side denominated in the other. The raw ratio (sqrtPrice/2^96)^2 is the
// amount of currency1 per currency0 in smallest units; scaling by
// 10^(dec0-dec1) converts to whole-unit terms, and the ratio is inverted when
// the priced token sits on the currency1 side.
func DecodeSqrtPrice(sqrtPrice *big.Int, decimals0, decimals1 int, tokenIsCurrency0 bool) float64 {
	if sqrtPrice == nil || sqrtPrice.Sign() <= 0 {
		return 0
	}

	sqrt := new(big.Float).SetPrec(256).SetInt(sqrtPrice)
	q96 := new(big.Float).SetPrec(256).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	ratio := new(big.Float).Quo(sqrt, q96)
	ratio.Mul(ratio, ratio)

	// Adjust for the decimal-precision difference between the two currencies
	exp := decimals0 - decimals1
	scale := new(big.Float).SetPrec(256).SetFloat64(math.Pow10(abs(exp)))
	if exp > 0 {
		ratio.Mul(ratio, scale)
	} else if exp < 0 {
		ratio.Quo(ratio, scale)
	}

	price, _ := ratio.Float64()
	if !tokenIsCurrency0 {
		if price == 0 {
			return 0
		}
		price = 1 / price
	}
	return price
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// readDecimals reads an ERC20 decimals() value, defaulting to 18 on failure.
// The wrapped native currency and platform coins are all 18-decimal in
// practice, so the default keeps price decoding usable under RPC hiccups.
func (l *Locator) readDecimals(ctx context.Context, token string) (int, error) {
	out, err := l.reader.CallViewMethod(ctx, common.HexToAddress(token), append([]byte{}, decimalsSelector...))
	if err != nil || len(out) < 32 {
		return 18, nil
	}
	return int(new(big.Int).SetBytes(out[:32]).Int64()), nil
}

// decodeInt24 decodes a signed 24-bit value from a 32-byte ABI word
func decodeInt24(word []byte) int32 {
	v := new(big.Int).SetBytes(word)
	// Sign-extend: ABI encodes negative int24 as two's complement over 256 bits
	if word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, max)
	}
	return int32(v.Int64())
}
