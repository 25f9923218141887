/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package theta

import (
	"errors"
	"fmt"
	"math"

	"github.com/thetasketch/thetacore/internal/errorbounds"
)

const jaccardNumStdDevs = 2.0

// JaccardSimilarityResult is the lower bound, point estimate, and upper
// bound of J(A,B) = |A∩B| / |A∪B|, a 95.4% (+/- 2 standard deviation)
// confidence interval around the estimate.
type JaccardSimilarityResult struct {
	LowerBound float64
	Estimate   float64
	UpperBound float64
}

// JaccardSimilarity computes J(A,B) by folding A and B through Union
// and Intersection built on the same seed, then bounding the ratio of
// the intersection's retained count over the union's.
func JaccardSimilarity(a, b Sketch, seed uint64) (JaccardSimilarityResult, error) {
	if a == b {
		return JaccardSimilarityResult{1, 1, 1}, nil
	}
	if a.IsEmpty() && b.IsEmpty() {
		return JaccardSimilarityResult{1, 1, 1}, nil
	}
	if a.IsEmpty() || b.IsEmpty() {
		return JaccardSimilarityResult{0, 0, 0}, nil
	}

	unionAB, err := computeUnionAB(a, b, seed)
	if err != nil {
		return JaccardSimilarityResult{}, err
	}
	if identicalRetainedSets(a, b, unionAB) {
		return JaccardSimilarityResult{1, 1, 1}, nil
	}

	intersection, err := NewIntersection(WithIntersectionSeed(seed))
	if err != nil {
		return JaccardSimilarityResult{}, err
	}
	if err := intersection.Update(a); err != nil {
		return JaccardSimilarityResult{}, err
	}
	if err := intersection.Update(b); err != nil {
		return JaccardSimilarityResult{}, err
	}
	// intersecting again with the union forces this result's theta
	// down to unionAB's, so the subsequent ratio bounds treat both
	// sides as samples drawn at the same inclusion probability.
	if err := intersection.Update(unionAB); err != nil {
		return JaccardSimilarityResult{}, err
	}
	interABU, err := intersection.GetResult(false)
	if err != nil {
		return JaccardSimilarityResult{}, err
	}

	lb, err := lowerBoundForBOverAInSketchedSets(unionAB, interABU)
	if err != nil {
		return JaccardSimilarityResult{}, err
	}
	est, err := estimateOfBOverAInSketchedSets(unionAB, interABU)
	if err != nil {
		return JaccardSimilarityResult{}, err
	}
	ub, err := upperBoundForBOverAInSketchedSets(unionAB, interABU)
	if err != nil {
		return JaccardSimilarityResult{}, err
	}
	return JaccardSimilarityResult{LowerBound: lb, Estimate: est, UpperBound: ub}, nil
}

// IsExactlyEqual reports whether a and b retain the exact same hashes
// under the same theta, without any similarity tolerance.
func IsExactlyEqual(a, b Sketch, seed uint64) (bool, error) {
	if a == b {
		return true, nil
	}
	if a.IsEmpty() && b.IsEmpty() {
		return true, nil
	}
	if a.IsEmpty() || b.IsEmpty() {
		return false, nil
	}
	unionAB, err := computeUnionAB(a, b, seed)
	if err != nil {
		return false, err
	}
	return identicalRetainedSets(a, b, unionAB), nil
}

// IsSimilar reports whether actual's similarity to expected is at
// least threshold with 97.7% confidence, by thresholding the lower
// bound of their Jaccard index.
func IsSimilar(actual, expected Sketch, threshold float64, seed uint64) (bool, error) {
	jc, err := JaccardSimilarity(actual, expected, seed)
	if err != nil {
		return false, err
	}
	return jc.LowerBound >= threshold, nil
}

// IsDissimilar reports whether actual's similarity to expected is at
// most threshold with 97.7% confidence, by thresholding the upper
// bound of their Jaccard index.
func IsDissimilar(actual, expected Sketch, threshold float64, seed uint64) (bool, error) {
	jc, err := JaccardSimilarity(actual, expected, seed)
	if err != nil {
		return false, err
	}
	return jc.UpperBound <= threshold, nil
}

func computeUnionAB(a, b Sketch, seed uint64) (Sketch, error) {
	lgK := log2Floor(ceilPow2(a.NumRetained() + b.NumRetained()))
	if lgK < MinLgK {
		lgK = MinLgK
	}
	if lgK > MaxLgK {
		lgK = MaxLgK
	}
	u, err := NewUnion(WithUnionLgK(lgK), WithUnionSeed(seed))
	if err != nil {
		return nil, err
	}
	if err := u.Update(a); err != nil {
		return nil, err
	}
	if err := u.Update(b); err != nil {
		return nil, err
	}
	return u.GetResult(false)
}

func identicalRetainedSets(a, b, unionAB Sketch) bool {
	return unionAB.NumRetained() == a.NumRetained() &&
		unionAB.NumRetained() == b.NumRetained() &&
		unionAB.Theta64() == a.Theta64() &&
		unionAB.Theta64() == b.Theta64()
}

// lowerBoundForBOverAInSketchedSets, estimateOfBOverAInSketchedSets and
// upperBoundForBOverAInSketchedSets treat sketchA as the full reference
// population and sketchB as a Bernoulli-sampled subset of it observed
// at inclusion probability sketchB.Theta(), matching the ratio-bounds
// technique the set-op engines are built to support.
func lowerBoundForBOverAInSketchedSets(sketchA, sketchB Sketch) (float64, error) {
	countA, countB, f, err := sampledCounts(sketchA, sketchB)
	if err != nil {
		return 0, err
	}
	if countA == 0 {
		return 0, nil
	}
	return lowerBoundForBOverA(countA, countB, f)
}

func upperBoundForBOverAInSketchedSets(sketchA, sketchB Sketch) (float64, error) {
	countA, countB, f, err := sampledCounts(sketchA, sketchB)
	if err != nil {
		return 0, err
	}
	if countA == 0 {
		return 1, nil
	}
	return upperBoundForBOverA(countA, countB, f)
}

func estimateOfBOverAInSketchedSets(sketchA, sketchB Sketch) (float64, error) {
	countA, countB, _, err := sampledCounts(sketchA, sketchB)
	if err != nil {
		return 0, err
	}
	if countA == 0 {
		return 0.5, nil
	}
	return float64(countB) / float64(countA), nil
}

func sampledCounts(sketchA, sketchB Sketch) (countA, countB uint64, f float64, err error) {
	thetaA, thetaB := sketchA.Theta64(), sketchB.Theta64()
	if thetaB > thetaA {
		return 0, 0, 0, errors.New("theta of A must be <= theta of B")
	}
	countB = uint64(sketchB.NumRetained())
	if thetaA == thetaB {
		countA = uint64(sketchA.NumRetained())
	} else {
		for h := range sketchA.All() {
			if h < thetaB {
				countA++
			}
		}
	}
	return countA, countB, sketchB.Theta(), nil
}

// lowerBoundForBOverA and upperBoundForBOverA return a confidence
// interval on b/a when b (|S_A ∩ B|) is a subset observed within a
// (|S_A|) sampled at inclusion probability f. At f=1 there is no
// sampling error and the bound collapses to the point estimate.
func lowerBoundForBOverA(a, b uint64, f float64) (float64, error) {
	if err := validateRatioInputs(a, b, f); err != nil {
		return 0, err
	}
	if a == 0 {
		return 0, nil
	}
	if f == 1.0 {
		return float64(b) / float64(a), nil
	}
	return errorbounds.LowerBoundOnP(a, b, jaccardNumStdDevs*confidenceAdjuster(f))
}

func upperBoundForBOverA(a, b uint64, f float64) (float64, error) {
	if err := validateRatioInputs(a, b, f); err != nil {
		return 0, err
	}
	if a == 0 {
		return 1, nil
	}
	if f == 1.0 {
		return float64(b) / float64(a), nil
	}
	return errorbounds.UpperBoundOnP(a, b, jaccardNumStdDevs*confidenceAdjuster(f))
}

// confidenceAdjuster widens the effective standard-deviation count as
// the sampling fraction f grows past 0.5, where the normal
// approximation underlying errorbounds degrades.
func confidenceAdjuster(f float64) float64 {
	tmp := math.Sqrt(1.0 - f)
	if f <= 0.5 {
		return tmp
	}
	return tmp + 0.01*(f-0.5)
}

func validateRatioInputs(a, b uint64, f float64) error {
	if a < b {
		return fmt.Errorf("%w: a must be >= b: a=%d, b=%d", ErrInvalidArgument, a, b)
	}
	if f > 1.0 || f <= 0.0 {
		return fmt.Errorf("%w: inclusion probability must be in (0, 1], got %g", ErrInvalidArgument, f)
	}
	return nil
}
