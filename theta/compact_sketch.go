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
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
)

// numStdDevsToZ maps the three supported confidence levels to the
// corresponding normal-distribution z-score; anything else falls back
// to the nearest supported level rather than erroring, since callers
// pass small integer literals here almost exclusively.
func numStdDevsToZ(numStdDevs uint8) float64 {
	switch {
	case numStdDevs <= 1:
		return 1.0
	case numStdDevs == 2:
		return 2.0
	default:
		return 3.0
	}
}

// CompactSketch is the immutable, wire-format-ready view of a theta
// sketch: a dense hash list together with theta, the empty flag, and
// the seed hash that ties it to the seed its samples were produced
// under. It unifies what upstream implementations keep as a family of
// Empty/SingleItem/HeapOrdered/HeapUnordered/MemoryBacked types behind
// one tagged representation; callers never see the distinction beyond
// what IsEmpty/NumRetained/IsOrdered already expose.
type CompactSketch struct {
	entries  []uint64
	theta    uint64
	seedHash uint16
	empty    bool
	ordered  bool
}

// NewCompactSketch copies source's retained hashes into a new compact
// sketch, sorting them if ordered is requested and the source isn't
// already ordered.
func NewCompactSketch(source Sketch, ordered bool) *CompactSketch {
	isEmpty := source.IsEmpty()
	sourceOrdered := source.IsOrdered()
	seedHash, _ := source.SeedHash()
	theta := source.Theta64()

	var entries []uint64
	if !isEmpty {
		for h := range source.All() {
			entries = append(entries, h)
		}
		if ordered && !sourceOrdered {
			slices.Sort(entries)
		}
	}

	return newCompactSketchFromEntries(isEmpty, sourceOrdered || ordered, seedHash, theta, entries)
}

// EmptyCompactSketch returns the canonical 8-byte empty sketch for seedHash.
func EmptyCompactSketch(seedHash uint16) *CompactSketch {
	return &CompactSketch{empty: true, ordered: true, seedHash: seedHash, theta: MaxTheta}
}

// newCompactSketchFromEntries builds a compact sketch directly from
// an already-screened hash list. A list of zero or one entries is
// trivially ordered regardless of what the caller claims, matching
// the single-item upgrade mandated for the heapify path.
func newCompactSketchFromEntries(empty, ordered bool, seedHash uint16, theta uint64, entries []uint64) *CompactSketch {
	if len(entries) <= 1 {
		ordered = true
	}
	return &CompactSketch{
		empty:    empty,
		ordered:  ordered,
		seedHash: seedHash,
		theta:    theta,
		entries:  entries,
	}
}

func (s *CompactSketch) IsEmpty() bool   { return s.empty }
func (s *CompactSketch) IsOrdered() bool { return s.ordered }

// Theta64 is theta as a positive integer in [1, 2^63-1].
func (s *CompactSketch) Theta64() uint64 { return s.theta }

// Theta is theta expressed as the effective sampling fraction in (0,1].
func (s *CompactSketch) Theta() float64 { return float64(s.theta) / float64(MaxTheta) }

func (s *CompactSketch) NumRetained() uint32 { return uint32(len(s.entries)) }

func (s *CompactSketch) SeedHash() (uint16, error) { return s.seedHash, nil }

// IsEstimationMode is false for the exact-mode boundary (theta == max)
// and for an empty sketch, which carries no meaningful theta at all.
func (s *CompactSketch) IsEstimationMode() bool {
	return s.theta < MaxTheta && !s.empty
}

// Estimate is the Horvitz-Thompson cardinality estimate: retained
// count scaled by the inverse sampling fraction. In exact mode this
// collapses to the retained count itself.
func (s *CompactSketch) Estimate() float64 {
	if !s.IsEstimationMode() {
		return float64(len(s.entries))
	}
	return float64(len(s.entries)) / s.Theta()
}

// LowerBound and UpperBound give the two-sided error bound at
// numStdDevs standard deviations (1, 2, or 3), collapsing to the exact
// count outside estimation mode. The bound is a Horvitz-Thompson style
// normal approximation: variance = estimate * (1/theta - 1).
func (s *CompactSketch) LowerBound(numStdDevs uint8) (float64, error) {
	if !s.IsEstimationMode() {
		return float64(len(s.entries)), nil
	}
	estimate := s.Estimate()
	z := numStdDevsToZ(numStdDevs)
	variance := estimate * (1.0/s.Theta() - 1.0)
	lb := estimate - z*math.Sqrt(variance)
	return math.Max(lb, float64(len(s.entries))), nil
}

func (s *CompactSketch) UpperBound(numStdDevs uint8) (float64, error) {
	if !s.IsEstimationMode() {
		return float64(len(s.entries)), nil
	}
	estimate := s.Estimate()
	z := numStdDevsToZ(numStdDevs)
	variance := estimate * (1.0/s.Theta() - 1.0)
	return estimate + z*math.Sqrt(variance), nil
}

// All lazily yields the retained hashes in storage order; a fresh
// range-over-func is produced on every call, so iteration restarts
// cleanly and concurrent ranges never interfere with each other.
func (s *CompactSketch) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for _, h := range s.entries {
			if !yield(h) {
				return
			}
		}
	}
}

// Compact returns a copy of s, sorted ascending if ordered is
// requested and s isn't already ordered. CompactSketch is always
// already compact, so this never does more than a copy-and-maybe-sort.
func (s *CompactSketch) Compact(ordered bool) *CompactSketch {
	entries := make([]uint64, len(s.entries))
	copy(entries, s.entries)
	isOrdered := s.ordered
	if ordered && !isOrdered {
		slices.Sort(entries)
		isOrdered = true
	}
	return newCompactSketchFromEntries(s.empty, isOrdered, s.seedHash, s.theta, entries)
}

func (s *CompactSketch) String(shouldPrintItems bool) string {
	seedHash, _ := s.SeedHash()
	lb, _ := s.LowerBound(2)
	ub, _ := s.UpperBound(2)

	var b strings.Builder
	b.WriteString("### Theta sketch summary:\n")
	fmt.Fprintf(&b, "   num retained entries : %d\n", s.NumRetained())
	fmt.Fprintf(&b, "   seed hash            : %d\n", seedHash)
	fmt.Fprintf(&b, "   empty?               : %t\n", s.IsEmpty())
	fmt.Fprintf(&b, "   ordered?             : %t\n", s.IsOrdered())
	fmt.Fprintf(&b, "   estimation mode?     : %t\n", s.IsEstimationMode())
	fmt.Fprintf(&b, "   theta (fraction)     : %g\n", s.Theta())
	fmt.Fprintf(&b, "   theta (raw 64-bit)   : %d\n", s.Theta64())
	fmt.Fprintf(&b, "   estimate             : %g\n", s.Estimate())
	fmt.Fprintf(&b, "   lower bound 95%% conf : %g\n", lb)
	fmt.Fprintf(&b, "   upper bound 95%% conf : %g\n", ub)
	b.WriteString("### End sketch summary\n")

	if shouldPrintItems {
		b.WriteString("### Retained entries\n")
		for h := range s.All() {
			fmt.Fprintf(&b, "%d\n", h)
		}
		b.WriteString("### End retained entries\n")
	}
	return b.String()
}
