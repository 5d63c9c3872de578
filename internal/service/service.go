package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-market-pulse/internal/alerting"
	"crypto-market-pulse/internal/collector"
	"crypto-market-pulse/internal/config"
	"crypto-market-pulse/internal/entropy"
	"crypto-market-pulse/internal/scheduler"
	"crypto-market-pulse/internal/series"
	"crypto-market-pulse/internal/storage"
)

// Service orchestrates collection, analysis, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	market     collector.MarketData
	analyzer   *entropy.Analyzer
	store      storage.MetricSampleStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	topN        int
	historyDays int
	channels    []string
	alertsOn    bool
	cooldown    time.Duration
	locker      storage.AdvisoryLocker
	lockKey     int64
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, market collector.MarketData, analyzer *entropy.Analyzer, store storage.MetricSampleStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:   sched,
		market:      market,
		analyzer:    analyzer,
		store:       store,
		alertStore:  alertStore,
		notifier:    notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		topN:        cfg.Market.TopN,
		historyDays: cfg.Analysis.HistoryDays,
		channels:    cfg.Alerting.Channels,
		alertsOn:    cfg.Alerting.Enabled,
		cooldown:    cfg.Alerting.Cooldown,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket executes the sampling pipeline for a single time bucket.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBucket(ctx, bucket)
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	global, err := s.market.GlobalMarketData(ctx)
	if err != nil {
		return fmt.Errorf("fetch global market data: %w", err)
	}
	if global.TotalMarketCapUSD <= 0 {
		return fmt.Errorf("global market data returned zero total market cap")
	}

	snapshot, err := s.market.TopByMarketCap(ctx, s.topN)
	if err != nil {
		return fmt.Errorf("fetch market snapshot: %w", err)
	}

	distribution, ok := s.analyzer.DistributionEntropy(snapshot)
	if !ok {
		return fmt.Errorf("distribution entropy unavailable for bucket")
	}

	regime := s.detectRegime(ctx, global)

	var previous *storage.MetricSample
	if s.store != nil {
		previous, err = s.store.LatestSample(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to load previous sample")
		}
	}

	sample := storage.MetricSample{
		Bucket:          bucket,
		TotalMarketCap:  decimal.NewFromFloat(global.TotalMarketCapUSD),
		BTCDominance:    decimal.NewFromFloat(global.DominancePct["btc"]),
		HHI:             distribution.HHI,
		Gini:            distribution.Gini,
		EntropyPct:      distribution.NormalizedEntropyPct,
		MarketStructure: distribution.MarketStructure,
		Regime:          regime.Regime,
		Confidence:      regime.Confidence,
		Status:          "complete",
		CreatedAt:       time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.UpsertMetricSample(ctx, sample); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to upsert sample")
		}
	}

	s.logger.Info().Time("bucket", bucket).
		Str("regime", regime.Regime).
		Str("structure", distribution.MarketStructure).
		Float64("hhi", distribution.HHI).
		Float64("btc_dominance", global.DominancePct["btc"]).
		Msg("sample recorded")

	if s.alertsOn && s.notifier != nil {
		s.maybeAlert(ctx, bucket, previous, regime, distribution, global)
	}

	return nil
}

// detectRegime assembles the historical series the regime detector needs.
// Any fetch failure degrades to whatever signals remain evaluable.
func (s *Service) detectRegime(ctx context.Context, global collector.GlobalData) entropy.RegimeResult {
	inputs := entropy.RegimeInputs{}

	if totalCaps, err := s.market.HistoricalMarketCaps(ctx, s.historyDays); err == nil {
		inputs.TotalMarketCap = totalCaps

		if dominance, err := s.market.HistoricalDominance(ctx, s.historyDays); err == nil {
			inputs.BTCDominance = dominance
			inputs.AltcoinCap = altcoinCapSeries(totalCaps, dominance)
		}
	}
	if prices, err := s.market.HistoricalPrices(ctx, "bitcoin", s.historyDays); err == nil {
		inputs.BTCPrice = prices
	}

	regime, ok := s.analyzer.DetectRegime(inputs)
	if !ok {
		s.logger.Warn().Msg("regime detection unavailable, labelling bucket as unknown")
		return entropy.RegimeResult{Regime: "Unknown"}
	}

	// Fall back to the point-in-time dominance reading when history is thin.
	if len(regime.Signals) == 0 && global.DominancePct["btc"] > 0 && global.DominancePct["btc"] < 45 {
		regime.Regime = "Altcoin Season"
	}
	return regime
}

func (s *Service) maybeAlert(ctx context.Context, bucket time.Time, previous *storage.MetricSample, regime entropy.RegimeResult, distribution entropy.DistributionMetrics, global collector.GlobalData) {
	previousRegime := ""
	if previous != nil {
		previousRegime = previous.Regime
	}
	if previousRegime == regime.Regime {
		return
	}
	if s.inCooldown(ctx) {
		s.logger.Debug().Time("bucket", bucket).Msg("regime changed but alert cooldown active")
		return
	}

	note := alerting.Notification{
		Bucket:         bucket,
		PreviousRegime: previousRegime,
		Regime:         regime.Regime,
		Confidence:     regime.Confidence,
		Signals:        regime.Signals,
		BTCDominance:   global.DominancePct["btc"],
		HHI:            distribution.HHI,
		Channels:       s.channels,
	}

	if s.alertStore != nil {
		record := storage.RegimeAlert{
			SampleTS:       bucket,
			PreviousRegime: previousRegime,
			Regime:         regime.Regime,
			Confidence:     regime.Confidence,
			Channels:       s.channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist regime alert")
		}
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to dispatch regime alert")
	}
}

func (s *Service) inCooldown(ctx context.Context) bool {
	if s.cooldown <= 0 || s.alertStore == nil {
		return false
	}
	alerts, err := s.alertStore.ListRecentAlerts(ctx, 1)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check alert cooldown")
		return false
	}
	if len(alerts) == 0 {
		return false
	}
	return time.Since(alerts[0].CreatedAt) < s.cooldown
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// altcoinCapSeries derives the non-BTC market cap series from the total
// market cap and dominance series, matched by day.
func altcoinCapSeries(total, dominance series.TimeSeries) series.TimeSeries {
	domByDay := make(map[string]float64, dominance.Len())
	for _, p := range dominance.Points() {
		domByDay[p.Timestamp.Format("2006-01-02")] = p.Value
	}

	points := make([]series.Point, 0, total.Len())
	for _, p := range total.Points() {
		dom, ok := domByDay[p.Timestamp.Format("2006-01-02")]
		if !ok {
			continue
		}
		points = append(points, series.Point{
			Timestamp: p.Timestamp,
			Value:     p.Value * (1 - dom/100),
		})
	}
	return series.New(points)
}
