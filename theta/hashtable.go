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
	"math"
	"slices"

	"github.com/thetasketch/thetacore/internal/quickselect"
)

const (
	strideHashBits = 7
	strideMask     = (1 << strideHashBits) - 1
)

// searchHash probes tab (capacity 2^lgArrLongs, 0 = empty slot) for
// key using Knuth's multiplicative-probing open addressing. It
// returns the slot index and true if key is already present, or the
// first empty slot found and false otherwise.
func searchHash(tab []uint64, lgArrLongs uint8, key uint64) (int, bool) {
	size := uint32(1) << lgArrLongs
	mask := size - 1
	stride := probeStride(key, lgArrLongs)
	index := uint32(key) & mask

	start := index
	for {
		probe := tab[index]
		if probe == 0 {
			return int(index), false
		}
		if probe == key {
			return int(index), true
		}
		index = (index + stride) & mask
		if index == start {
			return -1, false
		}
	}
}

// insertHash inserts key into tab if it is not already present,
// returning the slot used and whether an insertion happened (false
// means key was already present, or tab has no empty slot left). It
// does no range check of its own: callers screen key against 0 and
// theta before calling it.
func insertHash(tab []uint64, lgArrLongs uint8, key uint64) (int, bool) {
	idx, found := searchHash(tab, lgArrLongs, key)
	if found || idx < 0 {
		return idx, false
	}
	tab[idx] = key
	return idx, true
}

func probeStride(key uint64, lgArrLongs uint8) uint32 {
	return (2 * uint32((key>>lgArrLongs)&strideMask)) + 1
}

// lgSizeFromCount returns the smallest lgArrLongs such that
// count/2^lgArrLongs <= loadFactor, floored at MinLgK.
func lgSizeFromCount(count uint32, loadFactor float64) uint8 {
	lg := log2Floor(count)
	threshold := uint32(float64(uint32(1)<<(lg+1)) * loadFactor)
	if count > threshold {
		lg += 2
	} else {
		lg++
	}
	if lg < MinLgK {
		lg = MinLgK
	}
	return lg
}

func log2Floor(n uint32) uint8 {
	if n == 0 {
		return 0
	}
	lg := uint8(0)
	for (uint32(1) << (lg + 1)) <= n {
		lg++
	}
	return lg
}

// convertToHashTable builds a fresh open-addressed table sized to
// hold count entries at the given load factor and inserts every
// element of entries satisfying 0 < h < theta. Used by Intersection
// and A-not-B to get probe-efficient access to one side's hashes.
func convertToHashTable(entries []uint64, theta uint64, loadFactor float64) ([]uint64, uint8) {
	lg := lgSizeFromCount(uint32(len(entries)), loadFactor)
	tab := make([]uint64, 1<<lg)
	for _, h := range entries {
		if h > 0 && h < theta {
			insertHash(tab, lg, h)
		}
	}
	return tab, lg
}

// compactCache emits a dense slice of the non-zero entries of tab
// that satisfy 0 < h < theta, optionally sorted ascending.
func compactCache(tab []uint64, theta uint64, ordered bool) []uint64 {
	var out []uint64
	for _, h := range tab {
		if h > 0 && h < theta {
			out = append(out, h)
		}
	}
	if ordered {
		slices.Sort(out)
	}
	return out
}

// MemoryRequestServer gates growth of a memory-backed union beyond its
// caller-supplied destination buffer: given the buffer's current and
// the newly required capacity (in 8-byte longs), it reports whether
// the caller is willing to supply a larger buffer. Declining causes
// the triggering Update to fail with ErrCapacityExceeded.
type MemoryRequestServer func(currentCapacityLongs, requiredCapacityLongs int) bool

// growingTable is the mutable open-addressed cache backing the Union
// accumulator: unlike Intersection/A-not-B, it grows incrementally
// across many updates instead of being rebuilt fresh on every call.
type growingTable struct {
	entries    []uint64
	theta      uint64
	numEntries uint32
	lgCurSize  uint8
	lgNomSize  uint8
	rf         ResizeFactor
	capLongs   int // 0 means unbounded (heap-backed)
	memRequest MemoryRequestServer
}

func newGrowingTable(lgCurSize, lgNomSize uint8, rf ResizeFactor, theta uint64) *growingTable {
	return &growingTable{
		entries:   make([]uint64, 1<<lgCurSize),
		theta:     theta,
		lgCurSize: lgCurSize,
		lgNomSize: lgNomSize,
		rf:        rf,
	}
}

func (t *growingTable) capacity() uint32 {
	fraction := resizeThreshold
	if t.lgCurSize > t.lgNomSize {
		fraction = rebuildThreshold
	}
	return uint32(math.Floor(fraction * float64(uint32(1)<<t.lgCurSize)))
}

// insert inserts h unless it is 0 or not below the table's current
// theta, and grows or rebuilds the table if the load factor is now
// exceeded.
func (t *growingTable) insert(h uint64) error {
	if h == 0 || h >= t.theta {
		return nil
	}
	idx, inserted := insertHash(t.entries, t.lgCurSize, h)
	if !inserted || idx < 0 {
		return nil
	}
	t.numEntries++
	if t.numEntries > t.capacity() {
		if t.lgCurSize <= t.lgNomSize {
			return t.grow()
		}
		t.rebuild()
	}
	return nil
}

func (t *growingTable) grow() error {
	lgNew := t.lgCurSize + uint8(t.rf)
	if lgNew > t.lgNomSize+1 {
		lgNew = t.lgNomSize + 1
	}
	if t.capLongs > 0 {
		required := 1 << lgNew
		if required > t.capLongs {
			if t.memRequest == nil || !t.memRequest(t.capLongs, required) {
				return errCapacityExceeded(t.capLongs, required)
			}
			t.capLongs = required
		}
	}
	next := make([]uint64, 1<<lgNew)
	for _, h := range t.entries {
		if h != 0 {
			idx, _ := searchHash(next, lgNew, h)
			next[idx] = h
		}
	}
	t.entries = next
	t.lgCurSize = lgNew
	return nil
}

// rebuild reduces theta so that only the nominal number of smallest
// retained hashes survive, then reinserts those survivors into a
// fresh table of the same size. This is what keeps a union's working
// set bounded once it has reached its configured capacity.
func (t *growingTable) rebuild() {
	size := 1 << t.lgCurSize
	nominal := 1 << t.lgNomSize

	dense := compactNonZero(t.entries, int(t.numEntries))
	quickselect.Select(dense, 0, int(t.numEntries)-1, nominal)
	t.theta = dense[nominal]

	fresh := make([]uint64, size)
	for i := 0; i < nominal; i++ {
		idx, _ := searchHash(fresh, t.lgCurSize, dense[i])
		fresh[idx] = dense[i]
	}
	t.entries = fresh
	t.numEntries = uint32(nominal)
}

// trim forces a rebuild if the table currently holds more than its
// nominal number of entries, without waiting for the next insert.
func (t *growingTable) trim() {
	if t.numEntries > uint32(1)<<t.lgNomSize {
		t.rebuild()
	}
}

// tableSnapshot captures everything insert/grow/rebuild can mutate, so
// a failed Update can restore the accumulator to its pre-call state.
type tableSnapshot struct {
	entries    []uint64
	theta      uint64
	numEntries uint32
	lgCurSize  uint8
	capLongs   int
}

// snapshot copies the current mutable state of t.
func (t *growingTable) snapshot() tableSnapshot {
	return tableSnapshot{
		entries:    slices.Clone(t.entries),
		theta:      t.theta,
		numEntries: t.numEntries,
		lgCurSize:  t.lgCurSize,
		capLongs:   t.capLongs,
	}
}

// restore rolls t back to a previously captured snapshot.
func (t *growingTable) restore(s tableSnapshot) {
	t.entries = s.entries
	t.theta = s.theta
	t.numEntries = s.numEntries
	t.lgCurSize = s.lgCurSize
	t.capLongs = s.capLongs
}

func (t *growingTable) reset(startingLgSize uint8, startingTheta uint64) {
	t.lgCurSize = startingLgSize
	t.entries = make([]uint64, 1<<startingLgSize)
	t.numEntries = 0
	t.theta = startingTheta
}

// compactNonZero returns a new slice holding the first num non-zero
// entries of entries, in table order; entries itself is not modified.
func compactNonZero(entries []uint64, num int) []uint64 {
	dense := make([]uint64, 0, num)
	for _, h := range entries {
		if h != 0 {
			dense = append(dense, h)
			if len(dense) == num {
				break
			}
		}
	}
	return dense
}

// startingSubMultiple picks the initial lgCurSize for a table that
// will eventually grow to lgTgt, stepping by lgRf from lgMin.
func startingSubMultiple(lgTgt, lgMin, lgRf uint8) uint8 {
	if lgTgt <= lgMin {
		return lgMin
	}
	if lgRf == 0 {
		return lgTgt
	}
	return ((lgTgt-lgMin)%lgRf + lgMin)
}

func errCapacityExceeded(currentLongs, requiredLongs int) error {
	return fmt.Errorf("%w: destination buffer holds %d longs, union needs %d", ErrCapacityExceeded, currentLongs, requiredLongs)
}

func startingThetaFromP(p float32) uint64 {
	if p < 1 {
		return uint64(float64(MaxTheta) * float64(p))
	}
	return MaxTheta
}
