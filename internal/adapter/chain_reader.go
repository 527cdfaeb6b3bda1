package adapter

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// ChainReader is the read-only view of the chain consumed by the analysis
// pipeline. Implementations must be safe for concurrent use.
type ChainReader interface {
	// GetBytecode returns the deployed bytecode at address
	GetBytecode(ctx context.Context, address common.Address) ([]byte, error)

	// CallViewMethod performs a read-only contract call with pre-encoded call data
	CallViewMethod(ctx context.Context, address common.Address, data []byte) ([]byte, error)

	// GetLogsInRange returns logs emitted by contract matching eventSig in [fromBlock, toBlock]
	GetLogsInRange(ctx context.Context, contract common.Address, eventSig common.Hash, fromBlock, toBlock uint64) ([]ethtypes.Log, error)

	// GetCurrentBlockNumber returns the chain head block number
	GetCurrentBlockNumber(ctx context.Context) (uint64, error)
}

var addressPattern = regexp.MustCompile("^0x[a-fA-F0-9]{40}$")

// ValidAddress checks whether address is a well-formed EVM address
func ValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// NormalizeAddress lowercases an address for use as a map or storage key
func NormalizeAddress(address string) string {
	return strings.ToLower(address)
}

// EthereumChainReader implements ChainReader on top of an ethclient with
// primary/secondary failover and request pacing. The client is shared by
// concurrent callers; mu guards it across failover swaps.
type EthereumChainReader struct {
	mu          sync.RWMutex
	client      *ethclient.Client
	clientURL   string
	provider    DataProvider
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// NewEthereumChainReader creates a chain reader over the provider's current endpoint.
// reqsPerSecond bounds the outgoing RPC rate; callTimeout bounds each call.
func NewEthereumChainReader(provider DataProvider, reqsPerSecond float64, callTimeout time.Duration) (*EthereumChainReader, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	rpcURL, err := provider.GetCurrentURL()
	if err != nil {
		return nil, fmt.Errorf("failed to get RPC URL: %w", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}

	if reqsPerSecond <= 0 {
		reqsPerSecond = 10
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}

	return &EthereumChainReader{
		client:      client,
		clientURL:   rpcURL,
		provider:    provider,
		limiter:     rate.NewLimiter(rate.Limit(reqsPerSecond), int(reqsPerSecond)),
		callTimeout: callTimeout,
	}, nil
}

// GetBytecode returns the deployed bytecode at address
func (r *EthereumChainReader) GetBytecode(ctx context.Context, address common.Address) ([]byte, error) {
	var code []byte
	err := r.do(ctx, "GetBytecode", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		code, err = client.CodeAt(ctx, address, nil)
		return err
	})
	return code, err
}

// CallViewMethod performs a read-only contract call with pre-encoded call data
func (r *EthereumChainReader) CallViewMethod(ctx context.Context, address common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &address, Data: data}

	var out []byte
	err := r.do(ctx, "CallViewMethod", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		out, err = client.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}

// GetLogsInRange returns logs emitted by contract matching eventSig in [fromBlock, toBlock]
func (r *EthereumChainReader) GetLogsInRange(ctx context.Context, contract common.Address, eventSig common.Hash, fromBlock, toBlock uint64) ([]ethtypes.Log, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{eventSig}},
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
	}

	var logs []ethtypes.Log
	err := r.do(ctx, "GetLogsInRange", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		logs, err = client.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// GetCurrentBlockNumber returns the chain head block number
func (r *EthereumChainReader) GetCurrentBlockNumber(ctx context.Context) (uint64, error) {
	var blockNum uint64
	err := r.do(ctx, "GetCurrentBlockNumber", func(ctx context.Context, client *ethclient.Client) error {
		var err error
		blockNum, err = client.BlockNumber(ctx)
		return err
	})
	return blockNum, err
}

// do runs a chain call with pacing, a per-call timeout, health tracking,
// and a single failover-and-redial attempt on endpoint errors. The client
// is snapshotted before the call so a concurrent failover never swaps it
// mid-flight.
func (r *EthereumChainReader) do(ctx context.Context, op string, call func(ctx context.Context, client *ethclient.Client) error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	client, clientURL := r.currentClient()

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	err := call(callCtx, client)
	if err == nil {
		r.provider.RecordSuccess(time.Since(start))
		return nil
	}
	r.provider.RecordFailure(err)

	if !shouldFailover(err) {
		return err
	}

	if failErr := r.failover(clientURL); failErr != nil {
		return err
	}
	log.Printf("[ChainReader] %s failed (%v), retrying on the alternate endpoint", op, err)

	client, _ = r.currentClient()
	retryCtx, retryCancel := context.WithTimeout(ctx, r.callTimeout)
	defer retryCancel()

	start = time.Now()
	if retryErr := call(retryCtx, client); retryErr != nil {
		r.provider.RecordFailure(retryErr)
		return retryErr
	}
	r.provider.RecordSuccess(time.Since(start))
	return nil
}

// currentClient returns the active client and the endpoint it is dialed to
func (r *EthereumChainReader) currentClient() (*ethclient.Client, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client, r.clientURL
}

// failover swaps the shared client to the provider's alternate endpoint.
// fromURL is the endpoint the failing call used: when another goroutine has
// already swapped the client away from it, the swap is skipped and the
// caller retries on the replacement instead of flipping back to the
// endpoint that just failed.
func (r *EthereumChainReader) failover(fromURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientURL != fromURL {
		return nil
	}

	if err := r.provider.Failover(fromURL); err != nil {
		return err
	}
	rpcURL, err := r.provider.GetCurrentURL()
	if err != nil {
		return err
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return err
	}
	r.client = client
	r.clientURL = rpcURL
	return nil
}

// shouldFailover determines if an error warrants switching endpoints
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") {
		return true
	}
	return false
}
