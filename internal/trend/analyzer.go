package trend

import (
	"math"

	"github.com/rs/zerolog"

	"crypto-market-pulse/internal/series"
)

// Metrics describes the directional state of a series.
type Metrics struct {
	Slope          float64
	TotalChangePct float64
	Current        float64
	MA7            float64
	MA30           float64
	MA90           float64
	Direction      string
}

// Cycle labels returned by MarketCycle.
const (
	CycleBull          = "Bull Market (Accumulation/Markup)"
	CycleDistribution  = "Distribution Phase (Topping)"
	CycleBear          = "Bear Market (Markdown)"
	CycleAccumulation  = "Accumulation Phase (Bottoming)"
	CycleConsolidation = "Transition/Consolidation"
	CycleUnknown       = "Unknown"
)

// Analyzer computes descriptive trend statistics. It is a best-effort layer:
// degenerate input yields zero-value results or "Unknown", never an error.
type Analyzer struct {
	logger zerolog.Logger
}

// NewAnalyzer constructs a trend analyzer.
func NewAnalyzer(logger zerolog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With().Str("component", "trend_analyzer").Logger()}
}

// Metrics fits the full-series OLS slope, trailing means, and a direction
// label comparing the current value against the 30- and 90-day means.
func (a *Analyzer) Metrics(s series.TimeSeries) (Metrics, bool) {
	values := s.Values()
	if len(values) < 2 {
		a.logger.Debug().Int("points", len(values)).Msg("series too short for trend metrics")
		return Metrics{}, false
	}

	slope, _, _ := series.OLS(values)
	current := values[len(values)-1]

	totalChange := 0.0
	if values[0] != 0 {
		totalChange = (current - values[0]) / values[0] * 100
	}

	m := Metrics{
		Slope:          slope,
		TotalChangePct: totalChange,
		Current:        current,
		MA7:            series.Mean(s.Tail(7)),
		MA30:           series.Mean(s.Tail(30)),
		MA90:           series.Mean(s.Tail(90)),
	}
	m.Direction = classifyDirection(current, m.MA30, m.MA90)
	return m, true
}

// GrowthRates computes trailing percentage changes and CAGR per horizon.
// A horizon key is present only when the series spans it. CAGR is defined as
// 0 when the window start is non-positive.
func (a *Analyzer) GrowthRates(s series.TimeSeries) map[string]float64 {
	values := s.Values()
	out := make(map[string]float64)
	if len(values) < 2 {
		a.logger.Debug().Int("points", len(values)).Msg("series too short for growth rates")
		return out
	}

	current := values[len(values)-1]

	if len(values) >= 30 {
		out["1_month"] = pctChange(values[len(values)-30], current)
	}
	if len(values) >= 90 {
		start := values[len(values)-90]
		out["3_month"] = pctChange(start, current)
		out["3_month_cagr"] = cagr(start, current, 90)
	}
	if len(values) >= 365 {
		start := values[len(values)-365]
		out["1_year"] = pctChange(start, current)
		out["1_year_cagr"] = cagr(start, current, 365)
	}

	out["total"] = pctChange(values[0], current)
	out["total_cagr"] = cagr(values[0], current, len(values)-1)
	return out
}

// MarketCycle classifies the series into a market-cycle phase from its 50-
// and 200-point means and the slope of the last 30 points.
func (a *Analyzer) MarketCycle(s series.TimeSeries) string {
	values := s.Values()
	if len(values) < 2 {
		return CycleUnknown
	}

	current := values[len(values)-1]
	ma50 := series.Mean(s.Tail(50))
	ma200 := series.Mean(s.Tail(200))
	slope, _, _ := series.OLS(s.Tail(30))

	switch {
	case current > ma200 && ma50 > ma200 && slope > 0:
		return CycleBull
	case current > ma200 && slope < 0:
		return CycleDistribution
	case current < ma200 && ma50 < ma200 && slope < 0:
		return CycleBear
	case current < ma200 && slope > 0:
		return CycleAccumulation
	default:
		return CycleConsolidation
	}
}

func classifyDirection(current, ma30, ma90 float64) string {
	switch {
	case current > ma30 && ma30 > ma90:
		return "Strong Uptrend"
	case current > ma30:
		return "Uptrend"
	case current < ma30 && ma30 < ma90:
		return "Strong Downtrend"
	case current < ma30:
		return "Downtrend"
	default:
		return "Sideways"
	}
}

func pctChange(start, end float64) float64 {
	if start == 0 {
		return 0
	}
	return (end - start) / start * 100
}

// cagr computes the compound annual growth rate between two observations
// separated by periodDays.
func cagr(start, end float64, periodDays int) float64 {
	if start <= 0 || periodDays <= 0 {
		return 0
	}
	return math.Pow(end/start, 365/float64(periodDays)) - 1
}
