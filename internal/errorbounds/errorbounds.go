// Package errorbounds approximates the Clopper-Pearson confidence
// interval for a binomial proportion. Exact Clopper-Pearson intervals
// are strictly conservative; these approximations are not.
//
// n is the number of independent Bernoulli trials, p is the unknown
// success probability, and k (0 <= k <= n) is the observed number of
// successes. numStdDevs selects the confidence level the same way it
// does throughout this library: 1, 2 or 3 standard deviations of the
// normal distribution, corresponding to roughly 67%, 95% and 99%
// confidence.
package errorbounds

import (
	"fmt"
	"math"
)

// LowerBoundOnP returns the lower bound of an approximate confidence
// interval for the unknown success probability p, given n trials and
// k observed successes.
func LowerBoundOnP(n, k uint64, numStdDevs float64) (float64, error) {
	if k > n {
		return 0, fmt.Errorf("k cannot exceed n: n=%d, k=%d", n, k)
	}
	switch {
	case n == 0, k == 0:
		return 0.0, nil
	case k == 1:
		return exactLowerBoundKEq1(n, deltaOf(numStdDevs)), nil
	case k == n:
		return exactLowerBoundKEqN(n, deltaOf(numStdDevs)), nil
	default:
		x := abramowitzStegun(float64((n-k)+1), float64(k), -numStdDevs)
		return 1.0 - x, nil
	}
}

// UpperBoundOnP returns the upper bound of an approximate confidence
// interval for the unknown success probability p, given n trials and
// k observed successes.
func UpperBoundOnP(n, k uint64, numStdDevs float64) (float64, error) {
	if k > n {
		return 0, fmt.Errorf("k cannot exceed n: n=%d, k=%d", n, k)
	}
	switch {
	case n == 0, k == n:
		return 1.0, nil
	case k == n-1:
		return exactUpperBoundKEqNMinus1(n, deltaOf(numStdDevs)), nil
	case k == 0:
		return exactUpperBoundKEq0(n, deltaOf(numStdDevs)), nil
	default:
		x := abramowitzStegun(float64(n-k), float64(k+1), numStdDevs)
		return 1.0 - x, nil
	}
}

// NormalCDF approximates the standard normal cumulative distribution.
func NormalCDF(x float64) float64 {
	return 0.5 * (1.0 + erf(x/math.Sqrt2))
}

func deltaOf(numStdDevs float64) float64 {
	return NormalCDF(-numStdDevs)
}

// erf implements Abramowitz & Stegun formula 7.1.28 (p.88), accurate
// to roughly 7 decimal digits.
func erf(x float64) float64 {
	if x < 0 {
		return -erfNonNeg(-x)
	}
	return erfNonNeg(x)
}

func erfNonNeg(x float64) float64 {
	const (
		a1 = 0.0705230784
		a2 = 0.0422820123
		a3 = 0.0092705272
		a4 = 0.0001520143
		a5 = 0.0002765672
		a6 = 0.0000430638
	)
	x2 := x * x
	x3 := x2 * x
	x4 := x2 * x2
	x5 := x2 * x3
	x6 := x3 * x3

	sum := 1.0 + a1*x + a2*x2 + a3*x3 + a4*x4 + a5*x5 + a6*x6
	sum2 := sum * sum
	sum4 := sum2 * sum2
	sum8 := sum4 * sum4
	sum16 := sum8 * sum8
	return 1.0 - (1.0 / sum16)
}

// abramowitzStegun is formula 26.5.22 (p.945 of Abramowitz & Stegun),
// an approximation of the inverse of the incomplete beta function
// I_x(a,b) = delta, viewed as a function of x, where delta is
// specified indirectly through yp, the number of standard deviations
// leaving delta probability in the right tail of a standard normal.
func abramowitzStegun(a, b, yp float64) float64 {
	b2m1 := 2.0*b - 1.0
	a2m1 := 2.0*a - 1.0
	lambda := (yp*yp - 3.0) / 6.0
	h := 2.0 / ((1.0 / a2m1) + (1.0 / b2m1))
	term1 := (yp * math.Sqrt(h+lambda)) / h
	term2 := (1.0 / b2m1) - (1.0 / a2m1)
	term3 := (lambda + 5.0/6.0) - (2.0 / (3.0 * h))
	w := term1 - term2*term3
	return a / (a + b*math.Exp(2.0*w))
}

func exactUpperBoundKEq0(n uint64, delta float64) float64 {
	return 1.0 - math.Pow(delta, 1.0/float64(n))
}

func exactLowerBoundKEqN(n uint64, delta float64) float64 {
	return math.Pow(delta, 1.0/float64(n))
}

func exactLowerBoundKEq1(n uint64, delta float64) float64 {
	return 1.0 - math.Pow(1.0-delta, 1.0/float64(n))
}

func exactUpperBoundKEqNMinus1(n uint64, delta float64) float64 {
	return math.Pow(1.0-delta, 1.0/float64(n))
}
