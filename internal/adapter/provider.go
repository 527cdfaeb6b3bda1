package adapter

import (
	"fmt"
	"sync"
	"time"
)

// DataProvider defines the interface for RPC endpoint providers
type DataProvider interface {
	// GetCurrentURL returns the currently active RPC endpoint URL
	GetCurrentURL() (string, error)

	// Failover switches away from the given endpoint to the alternate one.
	// When the active endpoint already differs from from (another caller
	// switched first) the call is a no-op.
	// Returns error if no alternate endpoint is available
	Failover(from string) error

	// RecordSuccess records a successful request for health tracking
	RecordSuccess(duration time.Duration)

	// RecordFailure records a failed request for health tracking
	RecordFailure(err error)

	// IsHealthy returns true if the provider is considered healthy
	IsHealthy() bool

	// Reset resets the provider to use the primary endpoint
	Reset()
}

// RPCProvider implements DataProvider with a primary and optional secondary endpoint
type RPCProvider struct {
	mu sync.RWMutex

	primaryURL   string
	secondaryURL string
	currentURL   string

	totalRequests    int64
	successfulReqs   int64
	consecutiveFails int

	maxConsecutiveFails int
	minSuccessRate      float64
}

// NewRPCProvider creates a new RPC provider with primary and optional secondary URLs
func NewRPCProvider(primaryURL, secondaryURL string) (*RPCProvider, error) {
	if primaryURL == "" {
		return nil, fmt.Errorf("primary URL cannot be empty")
	}

	return &RPCProvider{
		primaryURL:          primaryURL,
		secondaryURL:        secondaryURL,
		currentURL:          primaryURL,
		maxConsecutiveFails: 5,
		minSuccessRate:      0.5,
	}, nil
}

// GetCurrentURL returns the currently active RPC endpoint URL
func (p *RPCProvider) GetCurrentURL() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.currentURL == "" {
		return "", fmt.Errorf("no active URL configured")
	}
	return p.currentURL, nil
}

// Failover switches between the primary and secondary endpoints. The from
// guard keeps concurrent failures from double-toggling back onto the
// endpoint that just failed.
func (p *RPCProvider) Failover(from string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentURL != from {
		return nil
	}

	if p.currentURL == p.primaryURL {
		if p.secondaryURL == "" {
			return fmt.Errorf("no secondary provider configured")
		}
		p.currentURL = p.secondaryURL
		p.consecutiveFails = 0
		return nil
	}

	p.currentURL = p.primaryURL
	p.consecutiveFails = 0
	return nil
}

// RecordSuccess records a successful request for health tracking
func (p *RPCProvider) RecordSuccess(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.successfulReqs++
	p.consecutiveFails = 0
}

// RecordFailure records a failed request for health tracking
func (p *RPCProvider) RecordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRequests++
	p.consecutiveFails++
}

// IsHealthy returns true if the provider is considered healthy
func (p *RPCProvider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.consecutiveFails >= p.maxConsecutiveFails {
		return false
	}
	if p.totalRequests >= 10 {
		successRate := float64(p.successfulReqs) / float64(p.totalRequests)
		if successRate < p.minSuccessRate {
			return false
		}
	}
	return true
}

// Reset resets the provider to use the primary endpoint
func (p *RPCProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentURL = p.primaryURL
	p.consecutiveFails = 0
}
