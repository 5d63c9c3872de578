package entropy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-market-pulse/internal/series"
)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(zerolog.Nop())
}

func snapshotFromCaps(caps ...float64) series.CrossSection {
	assets := make([]series.Asset, len(caps))
	for i, c := range caps {
		assets[i] = series.Asset{Symbol: "A" + string(rune('0'+i)), MarketCap: c, Rank: i + 1}
	}
	return series.CrossSection{Taken: time.Now(), Assets: assets}
}

func TestDistributionEntropyConcentratedMarket(t *testing.T) {
	a := newTestAnalyzer()

	metrics, ok := a.DistributionEntropy(snapshotFromCaps(500, 300, 100, 100))
	require.True(t, ok)

	// Shares 0.5/0.3/0.1/0.1 give HHI (0.25+0.09+0.01+0.01)*10000 = 3600.
	assert.InDelta(t, 3600, metrics.HHI, 1e-9)
	assert.InDelta(t, 50, metrics.Top1Pct, 1e-9)
	assert.Equal(t, "Highly Concentrated", metrics.MarketStructure)
	assert.Equal(t, 4, metrics.AssetCount)
	assert.Greater(t, metrics.Gini, 0.0)
	assert.Less(t, metrics.Gini, 1.0)
}

func TestDistributionEntropyUniformMarket(t *testing.T) {
	a := newTestAnalyzer()

	metrics, ok := a.DistributionEntropy(snapshotFromCaps(100, 100, 100, 100, 100, 100, 100, 100, 100, 100))
	require.True(t, ok)

	assert.InDelta(t, 1000, metrics.HHI, 1e-9)
	assert.InDelta(t, 100, metrics.NormalizedEntropyPct, 1e-9)
	assert.InDelta(t, 0, metrics.Gini, 1e-9)
	assert.Equal(t, "Competitive", metrics.MarketStructure)
	assert.Equal(t, "Highly Diversified", metrics.DiversificationLevel)
}

func TestDistributionEntropyDegenerateInputs(t *testing.T) {
	a := newTestAnalyzer()

	_, ok := a.DistributionEntropy(series.CrossSection{})
	assert.False(t, ok, "empty snapshot must be rejected")

	_, ok = a.DistributionEntropy(snapshotFromCaps(0, 0, 0))
	assert.False(t, ok, "zero total cap must be rejected")

	_, ok = a.DistributionEntropy(snapshotFromCaps(100, -5))
	assert.False(t, ok, "negative caps must be rejected")
}

func TestDominanceEntropyFlatHighDominance(t *testing.T) {
	a := newTestAnalyzer()

	values := make([]float64, 60)
	for i := range values {
		values[i] = 60
	}
	metrics, ok := a.DominanceEntropy(series.FromValues(values, time.Now()))
	require.True(t, ok)

	assert.Zero(t, metrics.ShannonEntropy, "constant dominance has zero entropy")
	assert.InDelta(t, 60, metrics.CurrentDominance, 1e-9)
	// Score: 0.6*max(0,100-120) + 0.4*(100-0) = 40.
	assert.InDelta(t, 40, metrics.AltcoinSeasonScore, 1e-9)
}

func TestDominanceEntropyTrendDirection(t *testing.T) {
	a := newTestAnalyzer()

	rising := make([]float64, 90)
	for i := range rising {
		rising[i] = 40 + float64(i)*0.2
	}
	metrics, ok := a.DominanceEntropy(series.FromValues(rising, time.Now()))
	require.True(t, ok)
	assert.Equal(t, "Increasing", metrics.Trend)
	assert.Greater(t, metrics.RecentMean, metrics.OlderMean)

	_, ok = a.DominanceEntropy(series.FromValues([]float64{50}, time.Now()))
	assert.False(t, ok, "single observation is insufficient")
}

func TestAltcoinDispersionExcludesMajorsAndShortHorizons(t *testing.T) {
	a := newTestAnalyzer()

	assets := []series.Asset{
		{Symbol: "BTC", Change24h: 1, Change7d: 2, Change30d: 3},
		{Symbol: "ETH", Change24h: 1, Change7d: 2, Change30d: 3},
	}
	for i := 0; i < 8; i++ {
		assets = append(assets, series.Asset{
			Symbol:    "ALT" + string(rune('A'+i)),
			Change24h: float64(i)*3 - 10,
			Change7d:  float64(i)*5 - 15,
			Change30d: float64(i)*8 - 20,
		})
	}

	out := a.AltcoinDispersion(series.CrossSection{Taken: time.Now(), Assets: assets})
	require.Len(t, out, 3)
	for _, period := range []string{"24h", "7d", "30d"} {
		d, found := out[period]
		require.True(t, found, period)
		assert.Equal(t, 8, d.Samples, "BTC and ETH must be excluded")
		assert.Greater(t, d.Range, 0.0)
		assert.NotEmpty(t, d.Level)
	}

	// Fewer than five altcoins leaves nothing to measure.
	small := a.AltcoinDispersion(snapshotFromCaps(1, 2, 3))
	assert.Empty(t, small)
}

func TestDetectRegimeNoSignals(t *testing.T) {
	a := newTestAnalyzer()

	result, ok := a.DetectRegime(RegimeInputs{})
	require.True(t, ok)
	assert.Equal(t, "Mixed/Transitional", result.Regime)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.Signals)
}

func TestDetectRegimeAltcoinSeasonWins(t *testing.T) {
	a := newTestAnalyzer()

	// Flat market cap fires Stable Growth; dominance below 45 fires Altcoin
	// Season, which takes precedence.
	mcap := make([]float64, 40)
	dom := make([]float64, 40)
	for i := range mcap {
		mcap[i] = 1e12
		dom[i] = 40
	}

	result, ok := a.DetectRegime(RegimeInputs{
		TotalMarketCap: series.FromValues(mcap, time.Now()),
		BTCDominance:   series.FromValues(dom, time.Now()),
	})
	require.True(t, ok)
	assert.Equal(t, "Altcoin Season", result.Regime)
	assert.Contains(t, result.Signals, "Stable Growth")
	assert.InDelta(t, 0.5, result.Confidence, 1e-9)
}

func TestDetectRegimeBitcoinDominanceEra(t *testing.T) {
	a := newTestAnalyzer()

	dom := make([]float64, 40)
	for i := range dom {
		dom[i] = 60
	}

	result, ok := a.DetectRegime(RegimeInputs{BTCDominance: series.FromValues(dom, time.Now())})
	require.True(t, ok)
	assert.Equal(t, "Bitcoin Dominance Era", result.Regime)
	assert.InDelta(t, 0.25, result.Confidence, 1e-9)
}

func TestComplexityIndexFullComponents(t *testing.T) {
	a := newTestAnalyzer()

	result, ok := a.ComplexityIndex(map[string]float64{
		"distribution":         50,
		"dominance_volatility": 40,
		"price_entropy":        0.6,
		"dispersion":           0.5,
	})
	require.True(t, ok)

	// 50*.25 + 40*.20 + 60*.25 + 50*.30 = 50.5 over full weight.
	assert.InDelta(t, 50.5, result.Index, 1e-9)
	assert.Equal(t, "High", result.Level)
	assert.Len(t, result.Components, 4)
}

func TestComplexityIndexRenormalizesPartialComponents(t *testing.T) {
	a := newTestAnalyzer()

	result, ok := a.ComplexityIndex(map[string]float64{"price_entropy": 0.8})
	require.True(t, ok)
	assert.InDelta(t, 80, result.Index, 1e-9)
	assert.Equal(t, "Extreme", result.Level)

	_, ok = a.ComplexityIndex(map[string]float64{"unknown": 1})
	assert.False(t, ok, "unrecognized components alone yield no index")
}
