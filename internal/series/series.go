package series

import (
	"math"
	"time"
)

// Point is a single timestamped observation.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// TimeSeries is an ordered sequence of observations for one metric.
// Timestamps are expected to be strictly increasing; construction helpers
// enforce this, direct literals are trusted.
type TimeSeries struct {
	points []Point
}

// New builds a TimeSeries from points, dropping any point whose timestamp
// does not advance past the previous one.
func New(points []Point) TimeSeries {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if len(out) > 0 && !p.Timestamp.After(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, p)
	}
	return TimeSeries{points: out}
}

// FromValues builds a daily series ending at end, oldest value first.
func FromValues(values []float64, end time.Time) TimeSeries {
	points := make([]Point, len(values))
	start := end.AddDate(0, 0, -(len(values) - 1))
	for i, v := range values {
		points[i] = Point{Timestamp: start.AddDate(0, 0, i), Value: v}
	}
	return TimeSeries{points: points}
}

// Append returns a copy of the series with p appended when its timestamp
// advances past the current last point, otherwise the series unchanged.
func (s TimeSeries) Append(p Point) TimeSeries {
	if len(s.points) > 0 && !p.Timestamp.After(s.points[len(s.points)-1].Timestamp) {
		return s
	}
	points := make([]Point, len(s.points), len(s.points)+1)
	copy(points, s.points)
	return TimeSeries{points: append(points, p)}
}

// Len reports the number of observations.
func (s TimeSeries) Len() int { return len(s.points) }

// Points returns the backing observations in ascending time order.
func (s TimeSeries) Points() []Point { return s.points }

// Values returns the observation values in ascending time order.
func (s TimeSeries) Values() []float64 {
	values := make([]float64, len(s.points))
	for i, p := range s.points {
		values[i] = p.Value
	}
	return values
}

// Last returns the most recent value, or 0 for an empty series.
func (s TimeSeries) Last() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.points[len(s.points)-1].Value
}

// Tail returns the values of the trailing n observations (the whole series
// when shorter than n).
func (s TimeSeries) Tail(n int) []float64 {
	values := s.Values()
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// Head returns the values of the leading n observations.
func (s TimeSeries) Head(n int) []float64 {
	values := s.Values()
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[:n]
}

// Returns computes period-over-period simple returns. Observations following
// a non-positive value are skipped.
func (s TimeSeries) Returns() []float64 {
	values := s.Values()
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

// Mean computes the arithmetic mean of values; 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev computes the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// OLS fits value = intercept + slope*index over values and returns the
// coefficients together with the residual standard deviation.
func OLS(values []float64) (slope, intercept, residualStd float64) {
	n := float64(len(values))
	if n < 2 {
		if n == 1 {
			return 0, values[0], 0
		}
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	var residSum float64
	for i, v := range values {
		r := v - (intercept + slope*float64(i))
		residSum += r * r
	}
	residualStd = math.Sqrt(residSum / n)
	return slope, intercept, residualStd
}
