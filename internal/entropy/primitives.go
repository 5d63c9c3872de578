package entropy

import (
	"math"
	"sort"
)

// Primitive entropy estimators shared by the analyzer. Histogram-based
// entropies are normalized to [0,1] so that downstream regime thresholds are
// scale-free; portfolio entropy is reported in nats.

// ShannonHistogram bins values into the given number of equal-width buckets
// and returns the Shannon entropy of the bucket distribution normalized by
// the maximum ln(bins). Degenerate inputs (fewer than two observations, or a
// constant series) yield 0.
func ShannonHistogram(values []float64, bins int) float64 {
	if len(values) < 2 || bins < 2 {
		return 0
	}

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return 0
	}

	counts := make([]int, bins)
	width := (max - min) / float64(bins)
	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	total := float64(len(values))
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		h -= p * math.Log(p)
	}

	normalized := h / math.Log(float64(bins))
	if normalized < 0 {
		return 0
	}
	if normalized > 1 {
		return 1
	}
	return normalized
}

// Portfolio returns -sum(share*ln(share)) over positive shares, in nats.
// An empty or all-zero share vector yields 0.
func Portfolio(shares []float64) float64 {
	h := 0.0
	for _, s := range shares {
		if s > 0 {
			h -= s * math.Log(s)
		}
	}
	return h
}

// Gini computes the Gini coefficient of a non-negative value vector using the
// rank formulation over ascending-sorted values. All-zero or empty input is
// defined as 0.
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum, rankSum float64
	for i, v := range sorted {
		sum += v
		rankSum += float64(i+1) * v
	}
	if sum == 0 {
		return 0
	}

	return (2*rankSum)/(float64(n)*sum) - float64(n+1)/float64(n)
}

// Sample computes the sample entropy of a series with embedding dimension m
// and tolerance r (as a fraction of the series standard deviation). Returns 0
// when the series is too short or no template matches exist.
func Sample(values []float64, m int, r float64) float64 {
	n := len(values)
	if n <= m+1 || m < 1 {
		return 0
	}

	tol := r * stdDev(values)
	if tol == 0 {
		return 0
	}

	b := countMatches(values, m, tol, false)
	a := countMatches(values, m+1, tol, false)
	if a == 0 || b == 0 {
		return 0
	}
	return -math.Log(float64(a) / float64(b))
}

// Approximate computes the approximate entropy (ApEn) of a series with
// embedding dimension m and tolerance r (fraction of standard deviation).
func Approximate(values []float64, m int, r float64) float64 {
	n := len(values)
	if n <= m+1 || m < 1 {
		return 0
	}

	tol := r * stdDev(values)
	if tol == 0 {
		return 0
	}
	return phi(values, m, tol) - phi(values, m+1, tol)
}

// Transfer estimates the lag-1 transfer entropy from source to target over
// sign-binarized period returns, in bits. It measures how much knowing the
// previous move of source reduces uncertainty about the next move of target.
// Non-positive estimates and degenerate inputs yield 0.
func Transfer(source, target []float64) float64 {
	n := len(source)
	if len(target) < n {
		n = len(target)
	}
	if n < 3 {
		return 0
	}

	src := binarizeReturns(source[len(source)-n:])
	tgt := binarizeReturns(target[len(target)-n:])
	if len(src) != len(tgt) || len(src) < 2 {
		return 0
	}

	// Joint counts over (target_next, target_prev, source_prev).
	var joint [2][2][2]float64
	var pairTT [2][2]float64
	var pairTS [2][2]float64
	var single [2]float64
	total := 0.0
	for t := 1; t < len(tgt); t++ {
		joint[tgt[t]][tgt[t-1]][src[t-1]]++
		pairTT[tgt[t]][tgt[t-1]]++
		pairTS[tgt[t-1]][src[t-1]]++
		single[tgt[t-1]]++
		total++
	}
	if total == 0 {
		return 0
	}

	te := 0.0
	for next := 0; next < 2; next++ {
		for prev := 0; prev < 2; prev++ {
			for sprev := 0; sprev < 2; sprev++ {
				pJoint := joint[next][prev][sprev] / total
				if pJoint == 0 {
					continue
				}
				pCondFull := joint[next][prev][sprev] / pairTS[prev][sprev]
				pCondSelf := pairTT[next][prev] / single[prev]
				if pCondFull <= 0 || pCondSelf <= 0 {
					continue
				}
				te += pJoint * math.Log2(pCondFull/pCondSelf)
			}
		}
	}
	if te < 0 {
		return 0
	}
	return te
}

func binarizeReturns(values []float64) []int {
	if len(values) < 2 {
		return nil
	}
	out := make([]int, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i] >= values[i-1] {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	}
	return out
}

// countMatches counts ordered template pairs of length m within tolerance,
// excluding self-matches.
func countMatches(values []float64, m int, tol float64, includeSelf bool) int {
	n := len(values) - m + 1
	count := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j && !includeSelf {
				continue
			}
			if templateMatch(values, i, j, m, tol) {
				count++
			}
		}
	}
	return count
}

// phi is the ApEn correlation sum term, self-matches included.
func phi(values []float64, m int, tol float64) float64 {
	n := len(values) - m + 1
	if n <= 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		matches := 0
		for j := 0; j < n; j++ {
			if templateMatch(values, i, j, m, tol) {
				matches++
			}
		}
		sum += math.Log(float64(matches) / float64(n))
	}
	return sum / float64(n)
}

func templateMatch(values []float64, i, j, m int, tol float64) bool {
	for k := 0; k < m; k++ {
		if math.Abs(values[i+k]-values[j+k]) > tol {
			return false
		}
	}
	return true
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
