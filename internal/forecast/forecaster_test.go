package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-market-pulse/internal/series"
)

func newTestForecaster() *Forecaster {
	return New(zerolog.Nop())
}

func flatSeries(value float64, n int) series.TimeSeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = value
	}
	return series.FromValues(values, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

func trendingSeries(start, step float64, n int) series.TimeSeries {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + step*float64(i)
	}
	return series.FromValues(values, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestForecastRejectsShortSeries(t *testing.T) {
	f := newTestForecaster()

	results := f.Forecast(flatSeries(100, MinObservations-1), []int{30}, MethodEnsemble)
	assert.Empty(t, results, "series below the observation floor must yield nothing")
}

func TestForecastFlatSeries(t *testing.T) {
	f := newTestForecaster()

	results := f.Forecast(flatSeries(100, 60), []int{30}, MethodEnsemble)
	require.Len(t, results, 1)

	r := results["1_month"]
	assert.InDelta(t, 100, r.PointForecast, 1e-9)
	assert.InDelta(t, 100, r.LowerBound, 1e-9, "flat history leaves no residual spread")
	assert.InDelta(t, 100, r.UpperBound, 1e-9)
	assert.Equal(t, MethodEnsemble, r.Method)
	assert.InDelta(t, 0.95, r.ConfidenceLevel, 1e-9)
}

func TestForecastIntervalOrdering(t *testing.T) {
	f := newTestForecaster()
	s := trendingSeries(1000, 5, 90)

	for _, method := range []Method{MethodLinear, MethodExponential, MethodMovingAverage, MethodEnsemble} {
		results := f.Forecast(s, []int{30, 90, 365}, method)
		require.Len(t, results, 3, method)
		for label, r := range results {
			assert.LessOrEqual(t, r.LowerBound, r.PointForecast, "%s %s", method, label)
			assert.LessOrEqual(t, r.PointForecast, r.UpperBound, "%s %s", method, label)
		}
	}
}

func TestEnsembleIsConvexCombination(t *testing.T) {
	f := newTestForecaster()
	s := trendingSeries(1000, 5, 90)

	results := f.Forecast(s, []int{30}, MethodEnsemble)
	r := results["1_month"]
	require.Len(t, r.ComponentForecasts, 3)

	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range r.ComponentForecasts {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	assert.GreaterOrEqual(t, r.PointForecast, min)
	assert.LessOrEqual(t, r.PointForecast, max)

	// 30-day weights 0.4/0.3/0.3.
	expected := 0.4*r.ComponentForecasts[MethodLinear] +
		0.3*r.ComponentForecasts[MethodExponential] +
		0.3*r.ComponentForecasts[MethodMovingAverage]
	assert.InDelta(t, expected, r.PointForecast, 1e-9)
}

func TestLinearForecastExtrapolatesTrend(t *testing.T) {
	f := newTestForecaster()
	s := trendingSeries(100, 2, 60)

	results := f.Forecast(s, []int{30}, MethodLinear)
	r := results["1_month"]

	// Exact line y=100+2x over 60 points projects index n+h=90.
	assert.InDelta(t, 100+2*90, r.PointForecast, 1e-6)
	assert.InDelta(t, r.PointForecast, r.LowerBound, 1e-6, "exact fit has no residual spread")
}

func TestForecastDominanceClipsBounds(t *testing.T) {
	f := newTestForecaster()

	// A steep upward trend would extrapolate above 100 without clipping.
	s := trendingSeries(60, 1, 60)
	results := f.ForecastDominance(s, []int{365})
	require.Len(t, results, 1)

	r := results["1_year"]
	assert.LessOrEqual(t, r.UpperBound, 100.0)
	assert.InDelta(t, 100, r.PointForecast, 1e-9, "point forecast beyond range must be clipped")
	assert.GreaterOrEqual(t, r.LowerBound, 0.0)
}

func TestForecastPriceAttachesVolatilityBounds(t *testing.T) {
	f := newTestForecaster()

	values := make([]float64, 60)
	for i := range values {
		values[i] = 50000 + 500*math.Sin(float64(i)/3) + 20*float64(i)
	}
	s := series.FromValues(values, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	results := f.ForecastPrice(s, []int{30, 90})
	require.Len(t, results, 2)

	for label, r := range results {
		require.NotNil(t, r.VolAdjustedLower, label)
		require.NotNil(t, r.VolAdjustedUpper, label)
		assert.Less(t, *r.VolAdjustedLower, r.PointForecast, label)
		assert.Greater(t, *r.VolAdjustedUpper, r.PointForecast, label)
	}

	// Wider horizon, wider volatility band.
	spread30 := *results["1_month"].VolAdjustedUpper - *results["1_month"].VolAdjustedLower
	spread90 := *results["3_months"].VolAdjustedUpper - *results["3_months"].VolAdjustedLower
	relative30 := spread30 / results["1_month"].PointForecast
	relative90 := spread90 / results["3_months"].PointForecast
	assert.Greater(t, relative90, relative30)
}

func TestHorizonLabel(t *testing.T) {
	cases := map[int]string{
		7:    "1_month",
		30:   "1_month",
		31:   "3_months",
		90:   "3_months",
		180:  "1_year",
		365:  "1_year",
		730:  "3_years",
		1095: "3_years",
		1825: "5_years",
	}
	for days, want := range cases {
		assert.Equal(t, want, HorizonLabel(days), "days=%d", days)
	}
}

func TestAccuracyPerfectForecast(t *testing.T) {
	f := newTestForecaster()
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	actual := series.FromValues([]float64{10, 12, 14, 16}, end)
	stats, ok := f.Accuracy(actual, actual)
	require.True(t, ok)

	assert.Zero(t, stats.MAE)
	assert.Zero(t, stats.RMSE)
	assert.InDelta(t, 1, stats.R2, 1e-12)
	assert.Equal(t, 4, stats.N)
}

func TestAccuracyNoOverlap(t *testing.T) {
	f := newTestForecaster()

	actual := series.FromValues([]float64{1, 2, 3}, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	forecasted := series.FromValues([]float64{1, 2, 3}, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	_, ok := f.Accuracy(actual, forecasted)
	assert.False(t, ok)
}

func TestAccuracyBiasedForecast(t *testing.T) {
	f := newTestForecaster()
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	actual := series.FromValues([]float64{100, 110, 120, 130}, end)
	forecasted := series.FromValues([]float64{90, 100, 110, 120}, end)

	stats, ok := f.Accuracy(actual, forecasted)
	require.True(t, ok)
	assert.InDelta(t, 10, stats.MAE, 1e-9)
	assert.InDelta(t, 10, stats.RMSE, 1e-9)
	assert.Greater(t, stats.MAPE, 0.0)
}

func TestForecastSkipsNonPositiveHorizons(t *testing.T) {
	f := newTestForecaster()

	results := f.Forecast(flatSeries(100, 60), []int{0, -5, 30}, MethodLinear)
	assert.Len(t, results, 1)
}
