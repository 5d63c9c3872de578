package forecast

import (
	"math"

	"github.com/rs/zerolog"

	"crypto-market-pulse/internal/series"
)

// Method selects the estimator used for a forecast.
type Method string

const (
	MethodLinear        Method = "linear"
	MethodExponential   Method = "exponential"
	MethodMovingAverage Method = "moving_average"
	MethodEnsemble      Method = "ensemble"
)

const (
	// MinObservations is the minimum series length accepted for forecasting.
	MinObservations = 30

	confidenceLevel = 0.95
	zScore          = 1.96
	smoothingAlpha  = 0.3
	maWindow        = 30
)

// Result is a point forecast with its interval for one horizon.
type Result struct {
	PeriodLabel     string
	PointForecast   float64
	LowerBound      float64
	UpperBound      float64
	ConfidenceLevel float64
	Method          Method

	// ComponentForecasts carries each member's raw point forecast when the
	// ensemble method produced this result.
	ComponentForecasts map[Method]float64

	// Volatility-adjusted bounds, set by price forecasts only.
	VolAdjustedLower *float64
	VolAdjustedUpper *float64
}

// AccuracyStats summarises out-of-sample forecast error over an overlap of
// actual and forecasted observations.
type AccuracyStats struct {
	MAE  float64
	MAPE float64
	RMSE float64
	R2   float64
	N    int
}

// Forecaster produces multi-horizon forecasts for a numeric time series.
// All methods are fail-soft: degenerate input is logged and yields an empty
// result map, never an error.
type Forecaster struct {
	logger zerolog.Logger
}

// New constructs a Forecaster.
func New(logger zerolog.Logger) *Forecaster {
	return &Forecaster{logger: logger.With().Str("component", "forecaster").Logger()}
}

// Forecast computes a forecast per horizon (in days) with the given method,
// keyed by horizon label. Series shorter than MinObservations yield an empty
// map.
func (f *Forecaster) Forecast(s series.TimeSeries, horizons []int, method Method) map[string]Result {
	if s.Len() < MinObservations {
		f.logger.Warn().Int("observations", s.Len()).Int("required", MinObservations).
			Msg("series too short to forecast")
		return map[string]Result{}
	}

	out := make(map[string]Result, len(horizons))
	for _, horizon := range horizons {
		if horizon <= 0 {
			continue
		}
		result, ok := f.forecastOne(s, horizon, method)
		if !ok {
			continue
		}
		out[HorizonLabel(horizon)] = result
	}
	return out
}

// ForecastDominance runs the ensemble forecast and clips all bounds into the
// valid dominance range [0, 100].
func (f *Forecaster) ForecastDominance(s series.TimeSeries, horizons []int) map[string]Result {
	results := f.Forecast(s, horizons, MethodEnsemble)
	for label, r := range results {
		r.PointForecast = clip(r.PointForecast, 0, 100)
		r.LowerBound = clip(r.LowerBound, 0, 100)
		r.UpperBound = clip(r.UpperBound, 0, 100)
		results[label] = r
	}
	return results
}

// ForecastPrice runs the ensemble forecast and attaches volatility-adjusted
// bounds derived from annualized daily-return volatility.
func (f *Forecaster) ForecastPrice(s series.TimeSeries, horizons []int) map[string]Result {
	results := f.Forecast(s, horizons, MethodEnsemble)
	if len(results) == 0 {
		return results
	}

	volatility := series.StdDev(s.Returns()) * math.Sqrt(365)
	for _, horizon := range horizons {
		label := HorizonLabel(horizon)
		r, ok := results[label]
		if !ok {
			continue
		}
		spread := volatility * math.Sqrt(float64(horizon)/365)
		lower := r.PointForecast * (1 - spread)
		upper := r.PointForecast * (1 + spread)
		r.VolAdjustedLower = &lower
		r.VolAdjustedUpper = &upper
		results[label] = r
	}
	return results
}

// Accuracy compares two series over their timestamp overlap and reports
// MAE, MAPE, RMSE, R², and the overlap size. No overlap yields a zero-valued
// result with ok=false.
func (f *Forecaster) Accuracy(actual, forecasted series.TimeSeries) (AccuracyStats, bool) {
	forecastByTime := make(map[int64]float64, forecasted.Len())
	for _, p := range forecasted.Points() {
		forecastByTime[p.Timestamp.Unix()] = p.Value
	}

	var actuals, errors []float64
	for _, p := range actual.Points() {
		predicted, ok := forecastByTime[p.Timestamp.Unix()]
		if !ok {
			continue
		}
		actuals = append(actuals, p.Value)
		errors = append(errors, p.Value-predicted)
	}
	if len(actuals) == 0 {
		f.logger.Debug().Msg("no overlap between actual and forecasted series")
		return AccuracyStats{}, false
	}

	var absSum, sqSum, pctSum float64
	pctCount := 0
	for i, e := range errors {
		absSum += math.Abs(e)
		sqSum += e * e
		if actuals[i] != 0 {
			pctSum += math.Abs(e / actuals[i])
			pctCount++
		}
	}

	n := float64(len(errors))
	mean := series.Mean(actuals)
	var totalSS float64
	for _, v := range actuals {
		d := v - mean
		totalSS += d * d
	}
	r2 := 0.0
	if totalSS > 0 {
		r2 = 1 - sqSum/totalSS
	}
	mape := 0.0
	if pctCount > 0 {
		mape = pctSum / float64(pctCount) * 100
	}

	return AccuracyStats{
		MAE:  absSum / n,
		MAPE: mape,
		RMSE: math.Sqrt(sqSum / n),
		R2:   r2,
		N:    len(errors),
	}, true
}

func (f *Forecaster) forecastOne(s series.TimeSeries, horizon int, method Method) (Result, bool) {
	switch method {
	case MethodLinear:
		return f.linear(s, horizon)
	case MethodExponential:
		return f.exponential(s, horizon)
	case MethodMovingAverage:
		return f.movingAverage(s, horizon)
	case MethodEnsemble, "":
		return f.ensemble(s, horizon)
	default:
		f.logger.Warn().Str("method", string(method)).Msg("unknown forecast method")
		return Result{}, false
	}
}

// linear fits value on its index by OLS and extrapolates, with a
// finite-sample prediction-interval approximation.
func (f *Forecaster) linear(s series.TimeSeries, horizon int) (Result, bool) {
	values := s.Values()
	slope, intercept, residStd := series.OLS(values)

	n := float64(len(values))
	h := float64(horizon)
	point := intercept + slope*(n+h)
	se := zScore * residStd * math.Sqrt(1+1/n+h*h/(12*n*n))

	return Result{
		PeriodLabel:     HorizonLabel(horizon),
		PointForecast:   point,
		LowerBound:      point - se,
		UpperBound:      point + se,
		ConfidenceLevel: confidenceLevel,
		Method:          MethodLinear,
	}, true
}

// exponential applies single exponential smoothing with a fixed alpha and
// projects the final level flat, widening the interval with horizon.
func (f *Forecaster) exponential(s series.TimeSeries, horizon int) (Result, bool) {
	values := s.Values()
	level := values[0]
	residuals := make([]float64, 0, len(values)-1)
	for _, v := range values[1:] {
		residuals = append(residuals, v-level)
		level = smoothingAlpha*v + (1-smoothingAlpha)*level
	}

	se := zScore * series.StdDev(residuals) * math.Sqrt(float64(horizon)/30)
	return Result{
		PeriodLabel:     HorizonLabel(horizon),
		PointForecast:   level,
		LowerBound:      level - se,
		UpperBound:      level + se,
		ConfidenceLevel: confidenceLevel,
		Method:          MethodExponential,
	}, true
}

// movingAverage forecasts mean reversion to the trailing window mean.
func (f *Forecaster) movingAverage(s series.TimeSeries, horizon int) (Result, bool) {
	window := maWindow
	if s.Len() < window {
		window = s.Len()
	}
	point := series.Mean(s.Tail(window))

	se := zScore * series.StdDev(s.Returns()) * s.Last() * math.Sqrt(float64(horizon))
	return Result{
		PeriodLabel:     HorizonLabel(horizon),
		PointForecast:   point,
		LowerBound:      point - se,
		UpperBound:      point + se,
		ConfidenceLevel: confidenceLevel,
		Method:          MethodMovingAverage,
	}, true
}

// ensemble combines the three estimators with horizon-dependent weights.
// If any member fails the ensemble degrades to the linear estimator alone.
func (f *Forecaster) ensemble(s series.TimeSeries, horizon int) (Result, bool) {
	linear, okL := f.linear(s, horizon)
	exponential, okE := f.exponential(s, horizon)
	movingAvg, okM := f.movingAverage(s, horizon)
	if !okL {
		return Result{}, false
	}
	if !okE || !okM {
		f.logger.Warn().Int("horizon", horizon).Msg("ensemble member failed, falling back to linear")
		return linear, true
	}

	wL, wE, wM := ensembleWeights(horizon)
	return Result{
		PeriodLabel:     HorizonLabel(horizon),
		PointForecast:   wL*linear.PointForecast + wE*exponential.PointForecast + wM*movingAvg.PointForecast,
		LowerBound:      wL*linear.LowerBound + wE*exponential.LowerBound + wM*movingAvg.LowerBound,
		UpperBound:      wL*linear.UpperBound + wE*exponential.UpperBound + wM*movingAvg.UpperBound,
		ConfidenceLevel: confidenceLevel,
		Method:          MethodEnsemble,
		ComponentForecasts: map[Method]float64{
			MethodLinear:        linear.PointForecast,
			MethodExponential:   exponential.PointForecast,
			MethodMovingAverage: movingAvg.PointForecast,
		},
	}, true
}

// HorizonLabel buckets a day-count horizon into its period label.
func HorizonLabel(days int) string {
	switch {
	case days <= 30:
		return "1_month"
	case days <= 90:
		return "3_months"
	case days <= 365:
		return "1_year"
	case days <= 1095:
		return "3_years"
	default:
		return "5_years"
	}
}

// ensembleWeights returns linear/exponential/moving-average weights for a
// horizon bucket. Longer horizons lean harder on the trend component.
func ensembleWeights(horizon int) (wLinear, wExponential, wMovingAvg float64) {
	switch {
	case horizon <= 90:
		return 0.4, 0.3, 0.3
	case horizon <= 365:
		return 0.5, 0.3, 0.2
	default:
		return 0.6, 0.25, 0.15
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
