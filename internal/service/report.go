package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"crypto-market-pulse/internal/collector"
	"crypto-market-pulse/internal/entropy"
	"crypto-market-pulse/internal/forecast"
	"crypto-market-pulse/internal/series"
	"crypto-market-pulse/internal/trend"
)

// Report is a one-shot full-market analysis. Sections are optional: a nil
// pointer or empty map means the underlying data was unavailable, which
// callers render as "data not available".
type Report struct {
	GeneratedAt time.Time

	Global        *collector.GlobalData
	Segments      *collector.Segments
	SeasonIndex   *collector.SeasonIndex
	Concentration *collector.Concentration

	Distribution *entropy.DistributionMetrics
	Dominance    *entropy.DominanceMetrics
	Dispersion   map[string]entropy.PeriodDispersion
	Regime       *entropy.RegimeResult
	Complexity   *entropy.ComplexityResult

	Trend       *trend.Metrics
	GrowthRates map[string]float64
	MarketCycle string

	MarketCapForecast map[string]forecast.Result
	DominanceForecast map[string]forecast.Result
	BTCPriceForecast  map[string]forecast.Result
}

// Reporter assembles a full analysis report from the collector and the
// analyzer stack. Every section degrades independently.
type Reporter struct {
	market      collector.MarketData
	forecaster  *forecast.Forecaster
	trends      *trend.Analyzer
	analyzer    *entropy.Analyzer
	logger      zerolog.Logger
	historyDays int
	topN        int
	horizons    []int
}

// NewReporter constructs a Reporter.
func NewReporter(market collector.MarketData, forecaster *forecast.Forecaster, trends *trend.Analyzer, analyzer *entropy.Analyzer, historyDays, topN int, horizons []int, logger zerolog.Logger) *Reporter {
	return &Reporter{
		market:      market,
		forecaster:  forecaster,
		trends:      trends,
		analyzer:    analyzer,
		logger:      logger.With().Str("component", "reporter").Logger(),
		historyDays: historyDays,
		topN:        topN,
		horizons:    horizons,
	}
}

// Analyze builds the full report. It returns an error only when no market
// data at all could be fetched; partial data yields a partial report.
func (r *Reporter) Analyze(ctx context.Context) (*Report, error) {
	report := &Report{GeneratedAt: time.Now().UTC()}
	sections := 0

	if global, err := r.market.GlobalMarketData(ctx); err == nil {
		report.Global = &global
		sections++
	} else {
		r.logger.Warn().Err(err).Msg("global market data unavailable")
	}

	if segments, err := r.market.MarketCapSegments(ctx); err == nil {
		report.Segments = &segments
		sections++
	}
	if season, err := r.market.AltcoinSeasonIndex(ctx); err == nil {
		report.SeasonIndex = &season
		sections++
	}
	if conc, err := r.market.ConcentrationMetrics(ctx); err == nil {
		report.Concentration = &conc
		sections++
	}

	var snapshot series.CrossSection
	if snap, err := r.market.TopByMarketCap(ctx, r.topN); err == nil {
		snapshot = snap
		sections++
		if dist, ok := r.analyzer.DistributionEntropy(snapshot); ok {
			report.Distribution = &dist
		}
		if dispersion := r.analyzer.AltcoinDispersion(snapshot); len(dispersion) > 0 {
			report.Dispersion = dispersion
		}
	}

	var totalCaps, dominance, btcPrices series.TimeSeries
	if caps, err := r.market.HistoricalMarketCaps(ctx, r.historyDays); err == nil {
		totalCaps = caps
		sections++
	}
	if dom, err := r.market.HistoricalDominance(ctx, r.historyDays); err == nil {
		dominance = dom
		sections++
	}
	if prices, err := r.market.HistoricalPrices(ctx, "bitcoin", r.historyDays); err == nil {
		btcPrices = prices
		sections++
	}

	if dominance.Len() > 0 {
		if dom, ok := r.analyzer.DominanceEntropy(dominance); ok {
			report.Dominance = &dom
		}
		report.DominanceForecast = r.forecaster.ForecastDominance(dominance, r.horizons)
	}

	if totalCaps.Len() > 0 {
		if metrics, ok := r.trends.Metrics(totalCaps); ok {
			report.Trend = &metrics
		}
		report.GrowthRates = r.trends.GrowthRates(totalCaps)
		report.MarketCycle = r.trends.MarketCycle(totalCaps)
		report.MarketCapForecast = r.forecaster.Forecast(totalCaps, r.horizons, forecast.MethodEnsemble)
	}

	if btcPrices.Len() > 0 {
		report.BTCPriceForecast = r.forecaster.ForecastPrice(btcPrices, r.horizons)
	}

	if regime, ok := r.analyzer.DetectRegime(entropy.RegimeInputs{
		TotalMarketCap: totalCaps,
		BTCDominance:   dominance,
		AltcoinCap:     altcoinCapSeries(totalCaps, dominance),
		BTCPrice:       btcPrices,
	}); ok {
		report.Regime = &regime
	}

	if complexity, ok := r.analyzer.ComplexityIndex(r.complexityComponents(report, btcPrices)); ok {
		report.Complexity = &complexity
	}

	if sections == 0 {
		return nil, fmt.Errorf("no market data available")
	}
	return report, nil
}

// complexityComponents gathers whichever index inputs the report produced.
func (r *Reporter) complexityComponents(report *Report, btcPrices series.TimeSeries) map[string]float64 {
	components := make(map[string]float64)
	if report.Distribution != nil {
		components["distribution"] = report.Distribution.NormalizedEntropyPct
	}
	if report.Dominance != nil {
		// Dominance volatility proxied by how far the series is from its
		// recent mean, scaled into 0-100.
		spread := report.Dominance.RecentMean - report.Dominance.OlderMean
		if spread < 0 {
			spread = -spread
		}
		components["dominance_volatility"] = spread * 10
	}
	if btcPrices.Len() >= 2 {
		components["price_entropy"] = entropy.ShannonHistogram(btcPrices.Returns(), 20)
	}
	if d, ok := report.Dispersion["24h"]; ok {
		components["dispersion"] = d.Entropy
	}
	return components
}
