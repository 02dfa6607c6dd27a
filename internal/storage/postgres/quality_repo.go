package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sawpanic/ingestd/internal/model"
)

type qualitySummaryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewQualitySummaryRepo creates the Postgres-backed QualitySummaryRepo.
func NewQualitySummaryRepo(db *sqlx.DB, timeout time.Duration) *qualitySummaryRepo {
	return &qualitySummaryRepo{db: db, timeout: timeout}
}

// Upsert replaces the scoring row for a (market, data type, timeframe,
// window) key — a re-scan of the same window always supersedes the prior
// result rather than accumulating duplicates.
func (r *qualitySummaryRepo) Upsert(ctx context.Context, s model.QualitySummary) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	issues, err := json.Marshal(s.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO quality_summaries
			(market_id, data_type, timeframe, window_start, window_end, expected, found, missing,
			 duplicate, out_of_order, price_jumps, volume_spikes, score, valid, issues, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (market_id, data_type, timeframe, window_start) DO UPDATE SET
			window_end = EXCLUDED.window_end, expected = EXCLUDED.expected, found = EXCLUDED.found,
			missing = EXCLUDED.missing, duplicate = EXCLUDED.duplicate, out_of_order = EXCLUDED.out_of_order,
			price_jumps = EXCLUDED.price_jumps, volume_spikes = EXCLUDED.volume_spikes, score = EXCLUDED.score,
			valid = EXCLUDED.valid, issues = EXCLUDED.issues, computed_at = now()`,
		s.MarketID, s.DataType, s.Timeframe, s.WindowStart, s.WindowEnd, s.Expected, s.Found, s.Missing,
		s.Duplicate, s.OutOfOrder, s.PriceJumps, s.VolumeSpikes, s.Score, s.Valid, issues)
	if err != nil {
		return fmt.Errorf("upsert quality summary: %w", err)
	}
	return nil
}

func (r *qualitySummaryRepo) ListRecent(ctx context.Context, marketID int64, limit int) ([]model.QualitySummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, market_id, data_type, timeframe, window_start, window_end, expected, found, missing,
		       duplicate, out_of_order, price_jumps, volume_spikes, score, valid, issues, computed_at
		FROM quality_summaries
		WHERE market_id = $1
		ORDER BY window_start DESC
		LIMIT $2`, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("list quality summaries: %w", err)
	}
	defer rows.Close()

	var out []model.QualitySummary
	for rows.Next() {
		var s model.QualitySummary
		var issues []byte
		if err := rows.Scan(&s.ID, &s.MarketID, &s.DataType, &s.Timeframe, &s.WindowStart, &s.WindowEnd,
			&s.Expected, &s.Found, &s.Missing, &s.Duplicate, &s.OutOfOrder, &s.PriceJumps, &s.VolumeSpikes,
			&s.Score, &s.Valid, &issues, &s.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan quality summary: %w", err)
		}
		if len(issues) > 0 {
			if err := json.Unmarshal(issues, &s.Issues); err != nil {
				return nil, fmt.Errorf("unmarshal issues: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
