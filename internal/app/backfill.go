package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"crypto-market-pulse/internal/entropy"
	"crypto-market-pulse/internal/series"
	"crypto-market-pulse/internal/storage"
)

// Backfill reconstructs daily metric samples from historical market-cap and
// dominance series. Cross-sectional metrics (HHI, Gini) cannot be recomputed
// for past days without historical snapshots, so backfilled rows carry the
// aggregate series metrics only and are marked with a distinct status.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.Days <= 0 {
		return errors.New("backfill --days must be greater than zero")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	market := a.newCollector()
	analyzer := entropy.NewAnalyzer(a.Logger)

	totalCaps, err := market.HistoricalMarketCaps(ctx, opts.Days)
	if err != nil {
		return err
	}
	dominance, err := market.HistoricalDominance(ctx, opts.Days)
	if err != nil {
		return err
	}
	if totalCaps.Len() == 0 || dominance.Len() == 0 {
		return errors.New("no historical data returned for backfill window")
	}

	domByDay := make(map[string]float64, dominance.Len())
	for _, p := range dominance.Points() {
		domByDay[p.Timestamp.Format("2006-01-02")] = p.Value
	}

	processed := 0
	skipped := 0
	capPoints := totalCaps.Points()
	for i, p := range capPoints {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dom, ok := domByDay[p.Timestamp.Format("2006-01-02")]
		if !ok {
			skipped++
			continue
		}

		// Regime is evaluated over the history available up to this day.
		upTo := series.New(capPoints[:i+1])
		regime, _ := analyzer.DetectRegime(entropy.RegimeInputs{TotalMarketCap: upTo})

		sample := storage.MetricSample{
			Bucket:         p.Timestamp.Truncate(24 * time.Hour),
			TotalMarketCap: decimal.NewFromFloat(p.Value),
			BTCDominance:   decimal.NewFromFloat(dom),
			Regime:         regime.Regime,
			Confidence:     regime.Confidence,
			Status:         "backfilled",
			CreatedAt:      time.Now().UTC(),
		}

		if store != nil {
			if err := store.UpsertMetricSample(ctx, sample); err != nil {
				a.Logger.Error().Err(err).Time("bucket", sample.Bucket).Msg("backfill upsert failed")
				skipped++
				continue
			}
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("skipped", skipped).Msg("backfill finished")
	return nil
}
