package pool

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/coinscan/internal/config"
	scanerrors "github.com/coinscan/internal/errors"
	"github.com/coinscan/internal/types"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken       = "0x1111111111111111111111111111111111111111"
	testWrapped     = "0x4200000000000000000000000000000000000006"
	testCreatorHook = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testContentHook = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testStateView   = "0xcccccccccccccccccccccccccccccccccccccccc"
	testPoolManager = "0xdddddddddddddddddddddddddddddddddddddddd"
)

func testPlatform() config.PlatformConfig {
	return config.PlatformConfig{
		CreatorHookAddress:   testCreatorHook,
		ContentHookAddress:   testContentHook,
		PoolManagerAddress:   testPoolManager,
		StateViewAddress:     testStateView,
		WrappedNativeAddress: testWrapped,
		NativeDecimals:       18,
	}
}

// mockChainReader serves canned pool state keyed by pool id
type mockChainReader struct {
	liquidity map[common.Hash]*big.Int
	sqrtPrice map[common.Hash]*big.Int
	logs      []ethtypes.Log
	head      uint64
	viewCalls int
}

func newMockChainReader() *mockChainReader {
	return &mockChainReader{
		liquidity: make(map[common.Hash]*big.Int),
		sqrtPrice: make(map[common.Hash]*big.Int),
		head:      5_000_000,
	}
}

func (m *mockChainReader) setPool(id common.Hash, liquidity, sqrtPrice *big.Int) {
	m.liquidity[id] = liquidity
	m.sqrtPrice[id] = sqrtPrice
}

func (m *mockChainReader) GetBytecode(ctx context.Context, address common.Address) ([]byte, error) {
	return nil, nil
}

func (m *mockChainReader) CallViewMethod(ctx context.Context, address common.Address, data []byte) ([]byte, error) {
	m.viewCalls++
	if len(data) < 4 {
		return nil, nil
	}
	selector := string(data[:4])

	switch selector {
	case string(getLiquiditySelector):
		id := common.BytesToHash(data[4:36])
		liquidity, ok := m.liquidity[id]
		if !ok {
			liquidity = big.NewInt(0)
		}
		return common.LeftPadBytes(liquidity.Bytes(), 32), nil

	case string(getSlot0Selector):
		id := common.BytesToHash(data[4:36])
		sqrtPrice, ok := m.sqrtPrice[id]
		if !ok {
			sqrtPrice = big.NewInt(0)
		}
		out := common.LeftPadBytes(sqrtPrice.Bytes(), 32)
		out = append(out, make([]byte, 96)...) // tick, protocolFee, lpFee
		return out, nil

	case string(decimalsSelector):
		return common.LeftPadBytes(big.NewInt(18).Bytes(), 32), nil
	}
	return nil, nil
}

func (m *mockChainReader) GetLogsInRange(ctx context.Context, contract common.Address, eventSig common.Hash, fromBlock, toBlock uint64) ([]ethtypes.Log, error) {
	return m.logs, nil
}

func (m *mockChainReader) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	return m.head, nil
}

func q96() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 96)
}

func TestComputePoolID(t *testing.T) {
	key := types.PoolKey{
		Currency0:   testToken,
		Currency1:   testWrapped,
		Fee:         30000,
		TickSpacing: 200,
		Hooks:       testCreatorHook,
	}

	first, err := ComputePoolID(key)
	require.NoError(t, err)
	second, err := ComputePoolID(key)
	require.NoError(t, err)
	assert.Equal(t, first, second, "pool id must be deterministic")

	key.Fee = 3000
	other, err := ComputePoolID(key)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "fee must contribute to the pool id")
}

func TestLocateViaKnownConfig(t *testing.T) {
	reader := newMockChainReader()
	locator := NewLocator(reader, testPlatform(), 0)

	key := types.PoolKey{
		Currency0:   testToken,
		Currency1:   testWrapped,
		Fee:         30000,
		TickSpacing: 200,
		Hooks:       testCreatorHook,
	}
	id, err := ComputePoolID(key)
	require.NoError(t, err)
	reader.setPool(id, big.NewInt(1_000_000), q96())

	state, err := locator.Locate(context.Background(), testToken)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, id.Hex(), state.PoolID)
	assert.Equal(t, types.OriginCreatorCoin, state.Origin)
	assert.Equal(t, big.NewInt(1_000_000), state.Liquidity)
}

func TestLocateZeroLiquidityIsNotFound(t *testing.T) {
	reader := newMockChainReader()
	locator := NewLocator(reader, testPlatform(), 0)

	// A pool exists on-chain but holds no liquidity: it must never be
	// returned as a PoolState.
	key := types.PoolKey{
		Currency0:   testToken,
		Currency1:   testWrapped,
		Fee:         30000,
		TickSpacing: 200,
		Hooks:       testCreatorHook,
	}
	id, err := ComputePoolID(key)
	require.NoError(t, err)
	reader.setPool(id, big.NewInt(0), q96())

	state, err := locator.Locate(context.Background(), testToken)
	assert.Nil(t, state)
	require.Error(t, err)
	assert.True(t, scanerrors.IsNotFound(err))
}

func TestLocateInvalidAddress(t *testing.T) {
	locator := NewLocator(newMockChainReader(), testPlatform(), 0)

	state, err := locator.Locate(context.Background(), "not-an-address")
	assert.Nil(t, state)
	require.Error(t, err)
	assert.True(t, scanerrors.IsInvalidInput(err))
}

func TestLocateViaEventScan(t *testing.T) {
	reader := newMockChainReader()
	locator := NewLocator(reader, testPlatform(), 0)

	// Unknown hook and fee, so the known-config probe misses and only the
	// Initialize scan can find this pool.
	unknownHook := "0x9999999999999999999999999999999999999999"
	key := types.PoolKey{
		Currency0:   testToken,
		Currency1:   testWrapped,
		Fee:         500,
		TickSpacing: 10,
		Hooks:       unknownHook,
	}
	id, err := ComputePoolID(key)
	require.NoError(t, err)
	reader.setPool(id, big.NewInt(42), q96())

	data := common.LeftPadBytes(big.NewInt(500).Bytes(), 32)
	data = append(data, common.LeftPadBytes(big.NewInt(10).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(unknownHook).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(q96().Bytes(), 32)...)
	data = append(data, make([]byte, 32)...) // tick
	reader.logs = []ethtypes.Log{{
		Topics: []common.Hash{
			initializeEventSig,
			id,
			common.HexToHash(common.HexToAddress(testToken).Hex()),
			common.HexToHash(common.HexToAddress(testWrapped).Hex()),
		},
		Data: data,
	}}

	state, err := locator.Locate(context.Background(), testToken)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, id.Hex(), state.PoolID)
	assert.Equal(t, types.OriginUnknown, state.Origin)
}

func TestDecodeSqrtPrice(t *testing.T) {
	tests := []struct {
		name             string
		sqrtPrice        *big.Int
		decimals0        int
		decimals1        int
		tokenIsCurrency0 bool
		want             float64
	}{
		{"unit price token0", q96(), 18, 18, true, 1.0},
		{"unit price token1", q96(), 18, 18, false, 1.0},
		{"double sqrt token0", new(big.Int).Mul(q96(), big.NewInt(2)), 18, 18, true, 4.0},
		{"double sqrt token1", new(big.Int).Mul(q96(), big.NewInt(2)), 18, 18, false, 0.25},
		{"decimal gap", q96(), 18, 6, true, 1e12},
		{"zero sqrt", big.NewInt(0), 18, 18, true, 0},
		{"nil sqrt", nil, 18, 18, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeSqrtPrice(tt.sqrtPrice, tt.decimals0, tt.decimals1, tt.tokenIsCurrency0)
			if tt.want == 0 {
				assert.Zero(t, got)
			} else {
				assert.InEpsilon(t, tt.want, got, 1e-9, "decoded price")
			}
		})
	}
}

func TestTokenPriceInNativeRejectsNonFinite(t *testing.T) {
	reader := newMockChainReader()
	locator := NewLocator(reader, testPlatform(), 0)

	state := &types.PoolState{
		Key: types.PoolKey{
			Currency0: testToken,
			Currency1: testWrapped,
		},
		SqrtPrice: big.NewInt(0),
	}

	price, err := locator.TokenPriceInNative(context.Background(), state, testToken)
	assert.Error(t, err)
	assert.Equal(t, 0.0, price)
	assert.False(t, math.IsNaN(price))
}
