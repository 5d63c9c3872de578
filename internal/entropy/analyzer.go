package entropy

import (
	"math"
	"strings"

	"github.com/rs/zerolog"

	"crypto-market-pulse/internal/series"
)

const (
	dominanceBins  = 30
	dispersionBins = 20

	embeddingDim = 2
	tolerance    = 0.2

	hhiHighlyConcentrated      = 2500.0
	hhiModeratelyConcentrated  = 1500.0
	giniHighlyConcentrated     = 0.7
	giniModeratelyConcentrated = 0.5
)

// DistributionMetrics quantifies market-cap concentration across a snapshot.
type DistributionMetrics struct {
	Entropy              float64
	MaxEntropy           float64
	NormalizedEntropyPct float64
	HHI                  float64
	Gini                 float64
	Top1Pct              float64
	Top5Pct              float64
	Top10Pct             float64
	AssetCount           int
	MarketStructure      string
	DiversificationLevel string
}

// DominanceMetrics describes the complexity and direction of a dominance series.
type DominanceMetrics struct {
	ShannonEntropy     float64
	SampleEntropy      float64
	ApproximateEntropy float64
	CurrentDominance   float64
	RecentMean         float64
	OlderMean          float64
	Trend              string
	AltcoinSeasonScore float64
}

// PeriodDispersion describes return dispersion for one return horizon.
type PeriodDispersion struct {
	Entropy       float64
	StdDev        float64
	Range         float64
	CoefVariation float64
	Level         string
	Samples       int
}

// RegimeResult is the combined market-regime classification.
type RegimeResult struct {
	Regime     string
	Signals    []string
	Confidence float64
}

// ComplexityResult blends available entropy metrics into one 0-100 index.
type ComplexityResult struct {
	Index          float64
	Level          string
	Interpretation string
	Components     map[string]float64
}

// RegimeInputs carries the series the regime detector consumes. Any series
// may be empty; the detector works with whatever signals it can evaluate.
type RegimeInputs struct {
	TotalMarketCap series.TimeSeries
	BTCDominance   series.TimeSeries
	AltcoinCap     series.TimeSeries
	BTCPrice       series.TimeSeries
}

// Analyzer derives concentration, dispersion, and regime metrics from market
// data. Every method is best-effort: on degenerate input it logs and returns
// a zero-value result with ok=false, never an error or panic.
type Analyzer struct {
	logger zerolog.Logger
}

// NewAnalyzer constructs an entropy analyzer.
func NewAnalyzer(logger zerolog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With().Str("component", "entropy_analyzer").Logger()}
}

// DistributionEntropy computes market-share entropy, HHI, Gini, and
// concentration ratios for a cross-sectional snapshot.
func (a *Analyzer) DistributionEntropy(snapshot series.CrossSection) (DistributionMetrics, bool) {
	caps := snapshot.MarketCaps()
	total := 0.0
	for _, c := range caps {
		if c < 0 {
			a.logger.Warn().Msg("snapshot contains negative market cap, skipping distribution entropy")
			return DistributionMetrics{}, false
		}
		total += c
	}
	if len(caps) == 0 || total == 0 {
		a.logger.Debug().Int("assets", len(caps)).Msg("empty snapshot, skipping distribution entropy")
		return DistributionMetrics{}, false
	}

	shares := make([]float64, len(caps))
	hhi := 0.0
	for i, c := range caps {
		shares[i] = c / total
		hhi += shares[i] * shares[i]
	}
	hhi *= 10000

	h := Portfolio(shares)
	maxH := math.Log(float64(len(caps)))
	normalizedPct := 0.0
	if maxH > 0 {
		normalizedPct = h / maxH * 100
	}

	metrics := DistributionMetrics{
		Entropy:              h,
		MaxEntropy:           maxH,
		NormalizedEntropyPct: normalizedPct,
		HHI:                  hhi,
		Gini:                 Gini(caps),
		Top1Pct:              concentration(snapshot, 1, total),
		Top5Pct:              concentration(snapshot, 5, total),
		Top10Pct:             concentration(snapshot, 10, total),
		AssetCount:           len(caps),
	}
	metrics.MarketStructure = classifyStructure(metrics.HHI, metrics.Gini)
	metrics.DiversificationLevel = classifyDiversification(normalizedPct)
	return metrics, true
}

// DominanceEntropy computes histogram/sample/approximate entropy of a
// dominance series together with a direction label and altcoin-season score.
func (a *Analyzer) DominanceEntropy(dominance series.TimeSeries) (DominanceMetrics, bool) {
	values := dominance.Values()
	if len(values) < 2 {
		a.logger.Debug().Int("points", len(values)).Msg("dominance series too short")
		return DominanceMetrics{}, false
	}

	shannon := ShannonHistogram(values, dominanceBins)
	current := values[len(values)-1]
	recent := series.Mean(dominance.Tail(30))
	older := series.Mean(dominance.Head(30))

	trend := "Decreasing"
	if recent > older {
		trend = "Increasing"
	}

	score := 0.6*math.Max(0, 100-2*current) + 0.4*math.Max(0, 100-100*shannon)
	score = clamp(score, 0, 100)

	return DominanceMetrics{
		ShannonEntropy:     shannon,
		SampleEntropy:      Sample(values, embeddingDim, tolerance),
		ApproximateEntropy: Approximate(values, embeddingDim, tolerance),
		CurrentDominance:   current,
		RecentMean:         recent,
		OlderMean:          older,
		Trend:              trend,
		AltcoinSeasonScore: score,
	}, true
}

// AltcoinDispersion measures how widely altcoin returns are spread for each
// return horizon, excluding BTC and ETH. Horizons with fewer than five data
// points are omitted from the result.
func (a *Analyzer) AltcoinDispersion(snapshot series.CrossSection) map[string]PeriodDispersion {
	alts := snapshot.Exclude("BTC", "ETH", "btc", "eth")

	out := make(map[string]PeriodDispersion)
	for period, pick := range map[string]func(series.Asset) float64{
		"24h": func(c series.Asset) float64 { return c.Change24h },
		"7d":  func(c series.Asset) float64 { return c.Change7d },
		"30d": func(c series.Asset) float64 { return c.Change30d },
	} {
		returns := make([]float64, 0, len(alts.Assets))
		for _, asset := range alts.Assets {
			returns = append(returns, pick(asset))
		}
		if len(returns) < 5 {
			continue
		}

		min, max := returns[0], returns[0]
		for _, r := range returns {
			if r < min {
				min = r
			}
			if r > max {
				max = r
			}
		}

		std := series.StdDev(returns)
		mean := series.Mean(returns)
		cv := 0.0
		if mean != 0 {
			cv = std / math.Abs(mean)
		}

		h := ShannonHistogram(returns, dispersionBins)
		out[period] = PeriodDispersion{
			Entropy:       h,
			StdDev:        std,
			Range:         max - min,
			CoefVariation: cv,
			Level:         classifyDispersion(h),
			Samples:       len(returns),
		}
	}
	return out
}

// DetectRegime combines up to four independent entropy signals into a single
// regime label. Confidence is the number of fired signals over four.
func (a *Analyzer) DetectRegime(inputs RegimeInputs) (RegimeResult, bool) {
	var signals []string

	if returns := inputs.TotalMarketCap.Returns(); len(returns) >= 2 {
		h := ShannonHistogram(returns, dispersionBins)
		if h < 0.4 {
			signals = append(signals, "Stable Growth")
		} else if h > 0.7 {
			signals = append(signals, "High Volatility")
		}
	}

	domValues := inputs.BTCDominance.Values()
	if len(domValues) >= 2 {
		recent := series.Mean(inputs.BTCDominance.Tail(30))
		apEn := Approximate(domValues, embeddingDim, tolerance)
		if apEn < 0.5 && recent > 50 {
			signals = append(signals, "Bitcoin Dominance Era")
		}
		if recent < 45 {
			signals = append(signals, "Altcoin Season")
		}
	}

	if inputs.BTCPrice.Len() >= 3 && inputs.AltcoinCap.Len() >= 3 {
		te := Transfer(inputs.BTCPrice.Values(), inputs.AltcoinCap.Values())
		if te > 0.5 {
			signals = append(signals, "BTC Leading Altcoins")
		}
	}

	if len(signals) == 0 {
		a.logger.Debug().Msg("no regime signals fired")
		return RegimeResult{Regime: "Mixed/Transitional", Signals: nil, Confidence: 0}, true
	}

	return RegimeResult{
		Regime:     combineSignals(signals),
		Signals:    signals,
		Confidence: float64(len(signals)) / 4.0,
	}, true
}

// ComplexityIndex blends whichever component metrics are present into one
// 0-100 score, renormalizing weights over the available components.
// Recognized components: "distribution" (normalized entropy %, 0-100),
// "dominance_volatility" (0-100), "price_entropy" (0-1), "dispersion" (0-1).
func (a *Analyzer) ComplexityIndex(components map[string]float64) (ComplexityResult, bool) {
	weights := map[string]float64{
		"distribution":         0.25,
		"dominance_volatility": 0.20,
		"price_entropy":        0.25,
		"dispersion":           0.30,
	}
	scale := map[string]float64{
		"distribution":         1,
		"dominance_volatility": 1,
		"price_entropy":        100,
		"dispersion":           100,
	}

	sum := 0.0
	weightSum := 0.0
	used := make(map[string]float64, len(components))
	for name, value := range components {
		w, ok := weights[name]
		if !ok {
			continue
		}
		scaled := clamp(value*scale[name], 0, 100)
		sum += scaled * w
		weightSum += w
		used[name] = scaled
	}
	if weightSum == 0 {
		a.logger.Debug().Msg("no recognized complexity components supplied")
		return ComplexityResult{}, false
	}

	index := sum / weightSum
	level, interpretation := classifyComplexity(index)
	return ComplexityResult{
		Index:          index,
		Level:          level,
		Interpretation: interpretation,
		Components:     used,
	}, true
}

func concentration(snapshot series.CrossSection, n int, total float64) float64 {
	sum := 0.0
	for _, asset := range snapshot.TopN(n) {
		sum += asset.MarketCap
	}
	return sum / total * 100
}

func classifyStructure(hhi, gini float64) string {
	switch {
	case hhi > hhiHighlyConcentrated || gini > giniHighlyConcentrated:
		return "Highly Concentrated"
	case hhi > hhiModeratelyConcentrated || gini > giniModeratelyConcentrated:
		return "Moderately Concentrated"
	default:
		return "Competitive"
	}
}

func classifyDiversification(normalizedPct float64) string {
	switch {
	case normalizedPct > 80:
		return "Highly Diversified"
	case normalizedPct > 60:
		return "Moderately Diversified"
	case normalizedPct > 40:
		return "Somewhat Concentrated"
	default:
		return "Highly Concentrated"
	}
}

func classifyDispersion(entropy float64) string {
	switch {
	case entropy > 0.7:
		return "High"
	case entropy > 0.5:
		return "Moderate"
	default:
		return "Low"
	}
}

func classifyComplexity(index float64) (string, string) {
	switch {
	case index < 30:
		return "Low", "Orderly market; trend-following setups favoured"
	case index < 50:
		return "Moderate", "Normal conditions; no structural stress"
	case index < 70:
		return "High", "Elevated disorder; size positions conservatively"
	default:
		return "Extreme", "Chaotic regime; reduce exposure and widen stops"
	}
}

// combineSignals resolves the final label with fixed precedence: an exact
// Altcoin Season signal wins, then Bitcoin Dominance Era, then the majority
// of bullish vs bearish signal keywords.
func combineSignals(signals []string) string {
	bullish, bearish := 0, 0
	var firstBullish, firstBearish string
	for _, s := range signals {
		if s == "Altcoin Season" {
			return s
		}
		switch {
		case strings.Contains(s, "Growth") || strings.Contains(s, "Leading"):
			bullish++
			if firstBullish == "" {
				firstBullish = s
			}
		case strings.Contains(s, "Volatility"):
			bearish++
			if firstBearish == "" {
				firstBearish = s
			}
		}
	}
	for _, s := range signals {
		if s == "Bitcoin Dominance Era" {
			return s
		}
	}
	switch {
	case bullish > bearish:
		return firstBullish
	case bearish > bullish:
		return firstBearish
	default:
		return "Mixed/Transitional"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
