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

// Package theta implements the core set-operation algebra for theta
// sketches: Union, Intersection and A-not-B over compact sketches,
// their shared hash-table primitives, and the bit-exact wire format
// that lets a serialized sketch round-trip across implementations.
package theta

import "iter"

// Sketch is the read-only capability set shared by every theta-sketch
// representation this package produces or consumes: in-heap compact
// sketches, memory-wrapped compact sketches, and the working result of
// a set-operation accumulator. It deliberately says nothing about how
// the hashes got there or how they are stored.
type Sketch interface {
	// IsEmpty reports whether this sketch represents the empty set.
	// This is distinct from having zero retained entries: a sketch at
	// a very small theta can have zero retained entries and still not
	// be empty.
	IsEmpty() bool

	// Estimate returns the estimated distinct count of the represented stream.
	Estimate() float64

	// LowerBound returns the approximate lower error bound at numStdDevs
	// standard deviations (1, 2 or 3, corresponding to roughly the 67%,
	// 95% and 99% confidence intervals).
	LowerBound(numStdDevs uint8) (float64, error)

	// UpperBound returns the approximate upper error bound at numStdDevs
	// standard deviations (1, 2 or 3).
	UpperBound(numStdDevs uint8) (float64, error)

	// IsEstimationMode reports whether the sketch is sampling (theta < max)
	// as opposed to exact mode.
	IsEstimationMode() bool

	// Theta returns theta as a fraction in [0, 1]: the effective sampling rate.
	Theta() float64

	// Theta64 returns theta as the raw unsigned-comparable 64-bit threshold.
	Theta64() uint64

	// NumRetained returns the number of retained hash entries.
	NumRetained() uint32

	// SeedHash returns the 16-bit digest of the update seed that produced
	// this sketch's hashes.
	SeedHash() (uint16, error)

	// IsOrdered reports whether the retained entries are in strictly
	// ascending order.
	IsOrdered() bool

	// String renders a human-readable summary; when shouldPrintItems is
	// true it also lists every retained hash.
	String(shouldPrintItems bool) string

	// All iterates the retained hashes in storage order.
	All() iter.Seq[uint64]
}
