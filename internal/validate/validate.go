// Package validate provides statistical tests and quality scoring over
// match residual distributions.
package validate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// minSampleCount is the fewest observations any test will accept;
// below it the result is inconclusive rather than an error.
const minSampleCount = 3

// ValidationResult reports the outcome of a statistical test.
// Statistic holds the test's own statistic (chi-squared, F ratio, or
// the KS D value depending on TestName).
type ValidationResult struct {
	IsValid          bool
	PValue           float64
	Statistic        float64
	DegreesOfFreedom int
	TestName         string
}

// ChiSquaredTest checks residual magnitudes against an expected
// variance. The p-value is a coarse two-level approximation around the
// critical value dof + 2*sqrt(2*dof); fewer than 3 residuals yield an
// inconclusive default result.
func ChiSquaredTest(residuals []float64, expectedVariance float64) ValidationResult {
	result := ValidationResult{TestName: "Chi-Squared Goodness of Fit"}
	if len(residuals) < minSampleCount || expectedVariance <= 0 {
		return result
	}

	var sumSq float64
	for _, r := range residuals {
		sumSq += r * r
	}
	result.Statistic = sumSq / expectedVariance
	result.DegreesOfFreedom = len(residuals) - 1

	dof := float64(result.DegreesOfFreedom)
	critical := dof + 2.0*math.Sqrt(2.0*dof)
	if result.Statistic < critical {
		result.PValue = 0.95
	} else {
		result.PValue = 0.05
	}
	result.IsValid = result.PValue > 0.05
	return result
}

// FTest compares the variances of two residual samples. The statistic
// is the larger sample variance over the smaller, with a two-tailed
// p-value from the F distribution.
func FTest(residuals1, residuals2 []float64) ValidationResult {
	result := ValidationResult{TestName: "F-Test of Equal Variances"}
	if len(residuals1) < minSampleCount || len(residuals2) < minSampleCount {
		return result
	}

	v1 := stat.Variance(residuals1, nil)
	v2 := stat.Variance(residuals2, nil)
	d1 := len(residuals1) - 1
	d2 := len(residuals2) - 1
	if v1 < v2 {
		v1, v2 = v2, v1
		d1, d2 = d2, d1
	}
	result.DegreesOfFreedom = d1 + d2

	if v2 == 0 {
		// Degenerate: a zero-variance sample. Equal only if both are.
		if v1 == 0 {
			result.PValue = 1.0
			result.Statistic = 1.0
			result.IsValid = true
		}
		return result
	}

	result.Statistic = v1 / v2
	dist := distuv.F{D1: float64(d1), D2: float64(d2)}
	cdf := dist.CDF(result.Statistic)
	result.PValue = math.Min(1.0, 2.0*math.Min(cdf, 1.0-cdf))
	result.IsValid = result.PValue > 0.05
	return result
}

// KSTest runs the two-sample Kolmogorov-Smirnov test. The statistic is
// the maximum distance between the empirical CDFs; the p-value uses the
// asymptotic Kolmogorov distribution.
func KSTest(sample1, sample2 []float64) ValidationResult {
	result := ValidationResult{TestName: "Kolmogorov-Smirnov Two-Sample"}
	if len(sample1) < minSampleCount || len(sample2) < minSampleCount {
		return result
	}

	s1 := append([]float64(nil), sample1...)
	s2 := append([]float64(nil), sample2...)
	sort.Float64s(s1)
	sort.Float64s(s2)

	d := stat.KolmogorovSmirnov(s1, nil, s2, nil)
	n1 := float64(len(s1))
	n2 := float64(len(s2))
	effectiveN := n1 * n2 / (n1 + n2)
	lambda := (math.Sqrt(effectiveN) + 0.12 + 0.11/math.Sqrt(effectiveN)) * d

	result.Statistic = d
	result.DegreesOfFreedom = len(s1) + len(s2) - 2
	result.PValue = ksProbability(lambda)
	result.IsValid = result.PValue > 0.05
	return result
}

// ksProbability evaluates the Kolmogorov survival series
// Q(lambda) = 2 * sum_{k>=1} (-1)^(k-1) exp(-2 k^2 lambda^2).
func ksProbability(lambda float64) float64 {
	if lambda <= 0 {
		return 1.0
	}
	sum := 0.0
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2.0*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	return math.Max(0.0, math.Min(1.0, 2.0*sum))
}
