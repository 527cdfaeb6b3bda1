package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/coinscan/internal/config"
	"github.com/coinscan/internal/types"
)

// ClickHouseHistoryProvider implements HistoryProvider against a pre-indexed
// transfers table. Deployments that already run an indexer can serve history
// locally instead of paging an RPC node.
//
// Expected schema:
//
//	CREATE TABLE transfers (
//	    hash         String,
//	    token        String,  -- empty for native transfers
//	    from_addr    String,
//	    to_addr      String,
//	    value        String,  -- smallest units, decimal
//	    timestamp    DateTime,
//	    block_number UInt64
//	) ENGINE = MergeTree ORDER BY (from_addr, to_addr, block_number)
type ClickHouseHistoryProvider struct {
	conn driver.Conn
}

// NewClickHouseHistoryProvider opens a connection to the indexed transfers database
func NewClickHouseHistoryProvider(cfg *config.ClickHouseConfig) (*ClickHouseHistoryProvider, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:  10 * time.Second,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseHistoryProvider{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (p *ClickHouseHistoryProvider) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// WalletTransactions returns the wallet's native-currency transfer records
func (p *ClickHouseHistoryProvider) WalletTransactions(ctx context.Context, wallet string) ([]types.Transaction, error) {
	wallet = strings.ToLower(wallet)

	rows, err := p.conn.Query(ctx, `
		SELECT hash, from_addr, to_addr, value, toUnixTimestamp(timestamp), block_number
		FROM transfers
		WHERE token = '' AND (from_addr = ? OR to_addr = ?)
		ORDER BY block_number ASC`, wallet, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query native transfers: %w", err)
	}
	defer rows.Close()

	var transactions []types.Transaction
	for rows.Next() {
		var tx types.Transaction
		var ts uint32
		if err := rows.Scan(&tx.Hash, &tx.From, &tx.To, &tx.Value, &ts, &tx.BlockNumber); err != nil {
			return nil, fmt.Errorf("failed to scan transfer row: %w", err)
		}
		tx.Timestamp = int64(ts)
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// TokenTransfers returns the wallet's transfer events for a single token contract
func (p *ClickHouseHistoryProvider) TokenTransfers(ctx context.Context, wallet, token string) ([]types.TokenTransferEvent, error) {
	wallet = strings.ToLower(wallet)
	token = strings.ToLower(token)

	rows, err := p.conn.Query(ctx, `
		SELECT hash, token, from_addr, to_addr, value, toUnixTimestamp(timestamp), block_number
		FROM transfers
		WHERE token = ? AND (from_addr = ? OR to_addr = ?)
		ORDER BY block_number ASC`, token, wallet, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query token transfers: %w", err)
	}
	defer rows.Close()

	var events []types.TokenTransferEvent
	for rows.Next() {
		var ev types.TokenTransferEvent
		var ts uint32
		if err := rows.Scan(&ev.Hash, &ev.Token, &ev.From, &ev.To, &ev.Value, &ts, &ev.BlockNumber); err != nil {
			return nil, fmt.Errorf("failed to scan transfer row: %w", err)
		}
		ev.Timestamp = int64(ts)
		events = append(events, ev)
	}
	return events, rows.Err()
}
