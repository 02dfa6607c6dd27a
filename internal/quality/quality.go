// Package quality scans the persisted candle series for gaps and anomalies,
// scores data quality, and enqueues prioritized backfill tasks for the REST
// collector to consume.
package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/ingestd/internal/model"
	"github.com/sawpanic/ingestd/internal/storage"
)

// Config holds the scanner's thresholds, grounded on the teacher's
// scoring-weight/threshold config shape.
type Config struct {
	PriceJumpThreshold  float64 // default 0.20 (|log(close/prev_close)|)
	VolumeSpikeSigma    float64 // default 6 (mean + k*sigma)
	MinPriorityAge      time.Duration
	CompletionThreshold float64 // default 0.8, fraction of expected rows to mark a task completed
	MaxRetries          int
	RetryCooldown       time.Duration
}

// DefaultConfig returns the scanner defaults named in the spec.
func DefaultConfig() Config {
	return Config{
		PriceJumpThreshold:  0.20,
		VolumeSpikeSigma:    6,
		CompletionThreshold: 0.8,
		MaxRetries:          5,
		RetryCooldown:       15 * time.Minute,
	}
}

// Scanner computes quality summaries and creates backfill tasks for gaps it
// finds.
type Scanner struct {
	cfg     Config
	candles storage.CandleRepo
	quality storage.QualitySummaryRepo
	backfl  storage.BackfillTaskRepo
	log     zerolog.Logger
}

// New constructs a Scanner.
func New(cfg Config, candles storage.CandleRepo, quality storage.QualitySummaryRepo, backfl storage.BackfillTaskRepo, log zerolog.Logger) *Scanner {
	return &Scanner{cfg: cfg, candles: candles, quality: quality, backfl: backfl, log: log.With().Str("component", "quality").Logger()}
}

// ScanResult is what Scan found for one (market, timeframe, window).
type ScanResult struct {
	Summary model.QualitySummary
	Gaps    []model.TimeRange
}

// Scan evaluates one (market, timeframe) over the half-open window,
// persists the resulting QualitySummary, and enqueues a backfill task per
// detected gap (§4.5).
func (s *Scanner) Scan(ctx context.Context, marketID int64, tf model.Timeframe, window model.TimeRange) (ScanResult, error) {
	candles, err := s.candles.ListRange(ctx, marketID, tf, window)
	if err != nil {
		return ScanResult{}, fmt.Errorf("list candles: %w", err)
	}

	step := tf.Duration()
	if step <= 0 {
		return ScanResult{}, fmt.Errorf("quality scan: unsupported timeframe %q", tf)
	}
	expected := int(window.End.Sub(window.Start) / step)

	present := make(map[int64]model.Candle, len(candles))
	var duplicates, outOfOrder int
	var lastOpen time.Time
	for i, c := range candles {
		key := c.OpenTime.UTC().UnixMilli()
		if _, ok := present[key]; ok {
			duplicates++
			continue
		}
		present[key] = c
		if i > 0 && c.OpenTime.Before(lastOpen) {
			outOfOrder++
		}
		lastOpen = c.OpenTime
	}

	gaps := findGaps(window, step, present)
	// missing = expected - actual - duplicates (§4.5); actual counts every
	// persisted row including duplicates, so present's already-deduped
	// count must not be used here or the duplicate term cancels itself out.
	missing := expected - len(candles) - duplicates
	if missing < 0 {
		missing = 0
	}

	jumps, spikes := anomalies(candles, s.cfg)

	score := scoreOf(expected, missing, duplicates, outOfOrder, jumps, spikes)
	summary := model.QualitySummary{
		MarketID:     marketID,
		DataType:     model.DataTypeOHLCV,
		Timeframe:    tf,
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		Expected:     expected,
		Found:        len(present),
		Missing:      missing,
		Duplicate:    duplicates,
		OutOfOrder:   outOfOrder,
		PriceJumps:   jumps,
		VolumeSpikes: spikes,
		Score:        score,
		Valid:        score >= 100,
		Issues:       issuesOf(missing, duplicates, outOfOrder, jumps, spikes),
	}

	if err := s.quality.Upsert(ctx, summary); err != nil {
		return ScanResult{}, fmt.Errorf("upsert quality summary: %w", err)
	}

	for _, gap := range gaps {
		task := model.BackfillTask{
			MarketID:      marketID,
			DataType:      model.DataTypeOHLCV,
			Timeframe:     tf,
			Start:         gap.Start,
			End:           gap.End,
			Priority:      priorityOf(gap, s.cfg.MinPriorityAge),
			ExpectedCount: int(gap.End.Sub(gap.Start) / step),
		}
		if _, err := s.backfl.Create(ctx, task); err != nil {
			s.log.Warn().Err(err).Int64("market_id", marketID).Time("gap_start", gap.Start).Msg("backfill task create failed")
		}
	}

	return ScanResult{Summary: summary, Gaps: gaps}, nil
}

// findGaps walks the expected open_times in window and yields a half-open
// interval per contiguous run of missing times, aligned to step.
func findGaps(window model.TimeRange, step time.Duration, present map[int64]model.Candle) []model.TimeRange {
	var gaps []model.TimeRange
	var runStart time.Time
	inRun := false

	for t := window.Start; t.Before(window.End); t = t.Add(step) {
		_, ok := present[t.UTC().UnixMilli()]
		if !ok {
			if !inRun {
				runStart = t
				inRun = true
			}
			continue
		}
		if inRun {
			gaps = append(gaps, model.TimeRange{Start: runStart, End: t})
			inRun = false
		}
	}
	if inRun {
		gaps = append(gaps, model.TimeRange{Start: runStart, End: window.End})
	}
	return gaps
}

// anomalies counts price jumps and volume spikes across the series in
// insertion order.
func anomalies(candles []model.Candle, cfg Config) (jumps, spikes int) {
	if len(candles) == 0 {
		return 0, 0
	}

	var volSum, volSumSq float64
	for _, c := range candles {
		volSum += c.BaseVolume
		volSumSq += c.BaseVolume * c.BaseVolume
	}
	n := float64(len(candles))
	mean := volSum / n
	variance := volSumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	sigma := math.Sqrt(variance)
	threshold := mean + cfg.VolumeSpikeSigma*sigma

	var prevClose float64
	for i, c := range candles {
		if i > 0 && prevClose > 0 && c.Close > 0 {
			if math.Abs(math.Log(c.Close/prevClose)) > cfg.PriceJumpThreshold {
				jumps++
			}
		}
		prevClose = c.Close
		if c.BaseVolume > threshold {
			spikes++
		}
	}
	return jumps, spikes
}

// scoreOf implements §4.5's scoring formula, clamped to [0, 100].
func scoreOf(expected, missing, duplicate, outOfOrder, jumps, spikes int) float64 {
	if expected <= 0 {
		return 100
	}
	exp := float64(expected)
	score := 100 - 100*float64(missing+duplicate+outOfOrder)/exp - 50*float64(jumps+spikes)/exp
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func issuesOf(missing, duplicate, outOfOrder, jumps, spikes int) []string {
	var issues []string
	if missing > 0 {
		issues = append(issues, fmt.Sprintf("%d missing candles", missing))
	}
	if duplicate > 0 {
		issues = append(issues, fmt.Sprintf("%d duplicate candles", duplicate))
	}
	if outOfOrder > 0 {
		issues = append(issues, fmt.Sprintf("%d out-of-order candles", outOfOrder))
	}
	if jumps > 0 {
		issues = append(issues, fmt.Sprintf("%d price jumps", jumps))
	}
	if spikes > 0 {
		issues = append(issues, fmt.Sprintf("%d volume spikes", spikes))
	}
	return issues
}

// priorityOf favors more recent gaps, per §4.5 ("more recent gaps get higher
// priority"). Base priority is 10; gaps older than minAge step down.
func priorityOf(gap model.TimeRange, minAge time.Duration) int {
	age := time.Since(gap.Start)
	if minAge <= 0 || age <= minAge {
		return 10
	}
	steps := int(age / minAge)
	priority := 10 - steps
	if priority < 1 {
		return 1
	}
	return priority
}
