package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coinscan/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository persists completed analysis results so past runs can be
// compared without re-analyzing the wallet
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{
		pool: pool,
	}
}

// Create stores one analysis result as a snapshot
func (r *SnapshotRepository) Create(ctx context.Context, analytics *types.PortfolioAnalytics) error {
	postsJSON, err := json.Marshal(analytics.Posts)
	if err != nil {
		return fmt.Errorf("failed to marshal posts: %w", err)
	}

	diagnosticsJSON, err := json.Marshal(analytics.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	query := `
		INSERT INTO analysis_snapshots (
			wallet,
			generated_at,
			total_invested_usd,
			total_current_usd,
			total_pnl_usd,
			total_pnl_pct,
			profitable_count,
			losing_count,
			posts,
			diagnostics
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.pool.Exec(
		ctx,
		query,
		analytics.Wallet,
		analytics.GeneratedAt,
		analytics.TotalInvestedUSD,
		analytics.TotalCurrentUSD,
		analytics.TotalPnLUSD,
		analytics.TotalPnLPct,
		analytics.ProfitableCount,
		analytics.LosingCount,
		postsJSON,
		diagnosticsJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// ListByWallet retrieves the most recent snapshots for a wallet, newest first
func (r *SnapshotRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]*types.PortfolioAnalytics, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			wallet,
			generated_at,
			total_invested_usd,
			total_current_usd,
			total_pnl_usd,
			total_pnl_pct,
			profitable_count,
			losing_count,
			posts,
			diagnostics
		FROM analysis_snapshots
		WHERE wallet = $1
		ORDER BY generated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*types.PortfolioAnalytics

	for rows.Next() {
		snapshot, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return snapshots, nil
}

// Latest retrieves the most recent snapshot for a wallet, nil when none exists
func (r *SnapshotRepository) Latest(ctx context.Context, wallet string) (*types.PortfolioAnalytics, error) {
	query := `
		SELECT
			wallet,
			generated_at,
			total_invested_usd,
			total_current_usd,
			total_pnl_usd,
			total_pnl_pct,
			profitable_count,
			losing_count,
			posts,
			diagnostics
		FROM analysis_snapshots
		WHERE wallet = $1
		ORDER BY generated_at DESC
		LIMIT 1
	`

	row := r.pool.QueryRow(ctx, query, wallet)
	snapshot, err := scanSnapshot(row.Scan)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// DeleteOlderThan removes snapshots generated before the retention cutoff
func (r *SnapshotRepository) DeleteOlderThan(ctx context.Context, wallet string, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		// Negative retention means unlimited (no deletion)
		return 0, nil
	}

	query := `
		DELETE FROM analysis_snapshots
		WHERE wallet = $1
			AND generated_at < NOW() - ($2 * INTERVAL '1 day')
	`

	result, err := r.pool.Exec(ctx, query, wallet, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}

	return result.RowsAffected(), nil
}

// scanSnapshot reads one snapshot row through the given scan function
func scanSnapshot(scan func(dest ...any) error) (*types.PortfolioAnalytics, error) {
	var snapshot types.PortfolioAnalytics
	var postsJSON []byte
	var diagnosticsJSON []byte

	err := scan(
		&snapshot.Wallet,
		&snapshot.GeneratedAt,
		&snapshot.TotalInvestedUSD,
		&snapshot.TotalCurrentUSD,
		&snapshot.TotalPnLUSD,
		&snapshot.TotalPnLPct,
		&snapshot.ProfitableCount,
		&snapshot.LosingCount,
		&postsJSON,
		&diagnosticsJSON,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
	}

	if err := json.Unmarshal(postsJSON, &snapshot.Posts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal posts: %w", err)
	}
	if err := json.Unmarshal(diagnosticsJSON, &snapshot.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
	}

	return &snapshot, nil
}
