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
	"encoding/binary"
	"fmt"
	"slices"
)

// Intersection is the stateful accumulator for A∩B∩...: the first
// Update seeds the working set from its argument; every later Update
// probes the current set against the new argument and keeps only
// survivors. A virgin Intersection (no Update yet) represents the
// universal set and has no defined result.
type Intersection struct {
	cache      []uint64
	lgArrLongs uint8
	theta      uint64
	seed       uint64
	seedHash   uint16
	numEntries uint32
	empty      bool
	hasResult  bool
}

type intersectionOptions struct {
	seed uint64
}

// IntersectionOptionFunc configures an Intersection at construction time.
type IntersectionOptionFunc func(*intersectionOptions)

// WithIntersectionSeed sets the update seed.
func WithIntersectionSeed(seed uint64) IntersectionOptionFunc {
	return func(o *intersectionOptions) { o.seed = seed }
}

// NewIntersection constructs a virgin Intersection.
func NewIntersection(opts ...IntersectionOptionFunc) (*Intersection, error) {
	options := &intersectionOptions{seed: DefaultSeed}
	for _, opt := range opts {
		opt(options)
	}
	return newIntersectionFromOptions(options)
}

func newIntersectionFromOptions(options *intersectionOptions) (*Intersection, error) {
	seedHash, err := ComputeSeedHash(options.seed)
	if err != nil {
		return nil, err
	}
	return &Intersection{
		theta:    MaxTheta,
		seed:     options.seed,
		seedHash: seedHash,
	}, nil
}

// Update intersects the accumulator with sketch. A nil sketch collapses
// the result to the empty set, matching "intersection with null is empty".
func (x *Intersection) Update(sketch Sketch) error {
	if sketch == nil {
		x.empty = true
		x.theta = MaxTheta
		x.numEntries = 0
		x.cache = nil
		x.lgArrLongs = 0
		x.hasResult = true
		return nil
	}

	if !sketch.IsEmpty() {
		sketchSeedHash, err := sketch.SeedHash()
		if err != nil {
			return err
		}
		if sketchSeedHash != x.seedHash {
			return fmt.Errorf("%w: intersection seed hash %d, input seed hash %d", ErrSeedMismatch, x.seedHash, sketchSeedHash)
		}
	}

	if !x.hasResult {
		return x.firstUpdate(sketch)
	}
	return x.laterUpdate(sketch)
}

func (x *Intersection) firstUpdate(sketch Sketch) error {
	x.hasResult = true
	x.theta = sketch.Theta64()
	x.empty = sketch.IsEmpty()

	if x.empty {
		x.cache = nil
		x.lgArrLongs = 0
		x.numEntries = 0
		return nil
	}

	var retained []uint64
	for h := range sketch.All() {
		if h > 0 && h < x.theta {
			retained = append(retained, h)
		}
	}
	x.cache, x.lgArrLongs = convertToHashTable(retained, x.theta, rebuildThreshold)
	x.numEntries = uint32(len(retained))
	return nil
}

func (x *Intersection) laterUpdate(sketch Sketch) error {
	x.theta = min(x.theta, sketch.Theta64())

	if x.numEntries == 0 {
		x.settleEmpty()
		return nil
	}
	if sketch.IsEmpty() || sketch.NumRetained() == 0 {
		x.numEntries = 0
		x.cache = nil
		x.lgArrLongs = 0
		x.settleEmpty()
		return nil
	}

	var survivors []uint64
	if uint32(1)<<x.lgArrLongs >= sketch.NumRetained() {
		// probe the larger side's table (ours) with the other side's entries
		for h := range sketch.All() {
			if h == 0 || h >= x.theta {
				if sketch.IsOrdered() {
					break
				}
				continue
			}
			if _, found := searchHash(x.cache, x.lgArrLongs, h); found {
				survivors = append(survivors, h)
			}
		}
	} else {
		other, otherLg := convertToHashTable(collect(sketch), x.theta, rebuildThreshold)
		for _, h := range x.cache {
			if h == 0 || h >= x.theta {
				continue
			}
			if _, found := searchHash(other, otherLg, h); found {
				survivors = append(survivors, h)
			}
		}
	}

	x.numEntries = uint32(len(survivors))
	if x.numEntries == 0 {
		x.cache = nil
		x.lgArrLongs = 0
	} else {
		x.cache, x.lgArrLongs = convertToHashTable(survivors, x.theta, rebuildThreshold)
	}
	x.settleEmpty()
	return nil
}

func (x *Intersection) settleEmpty() {
	x.empty = x.numEntries == 0 && x.theta == MaxTheta
}

func collect(s Sketch) []uint64 {
	out := make([]uint64, 0, s.NumRetained())
	for h := range s.All() {
		out = append(out, h)
	}
	return out
}

// HasResult reports whether Update has been called at least once.
func (x *Intersection) HasResult() bool { return x.hasResult }

// GetResult compacts the current working set. Calling it on a virgin
// intersection (no Update yet) is undefined per the theta-sketch
// algebra, since a virgin intersection denotes the universal set.
func (x *Intersection) GetResult(ordered bool) (*CompactSketch, error) {
	if !x.hasResult {
		return nil, fmt.Errorf("%w: GetResult called before any Update", ErrIllegalState)
	}

	entries := compactCache(x.cache, x.theta, false)
	if ordered {
		slices.Sort(entries)
	}
	return newCompactSketchFromEntries(x.empty, ordered, x.seedHash, x.theta, entries), nil
}

// ToBytes persists the intersection's working cache: a 3-long preamble
// (a has-result bit in the flags byte, entry count in long 1, theta in
// long 2) followed by the 2^lgArrLongs raw cache longs. When there is
// no cache (virgin, or no entries left) lgArrLongs is 0 and no cache
// longs follow the preamble.
func (x *Intersection) ToBytes() ([]byte, error) {
	size := preambleBytes*3 + len(x.cache)*8
	dst := make([]byte, size)

	flags := uint8(0)
	if x.empty {
		flags |= 1 << flagEmpty
	}
	if x.hasResult {
		flags |= 1 << flagSingleItem // repurposed on this family to mean "has result"
	}

	WriteHeader(dst, Header{
		PreLongs:      3,
		SerialVersion: serialVersion3,
		Family:        FamilyIntersection,
		LgArrLongs:    x.lgArrLongs,
		Flags:         flags,
		SeedHash:      x.seedHash,
	})

	binary.LittleEndian.PutUint32(dst[8:12], x.numEntries)
	binary.LittleEndian.PutUint64(dst[16:24], x.theta)

	offset := preambleBytes * 3
	for _, h := range x.cache {
		binary.LittleEndian.PutUint64(dst[offset:offset+8], h)
		offset += 8
	}
	return dst, nil
}

// HeapifyIntersection reconstructs a mutable Intersection from a
// buffer written by ToBytes.
func HeapifyIntersection(buf []byte, seed uint64) (*Intersection, error) {
	hdr, err := ParseHeader(buf, &seed)
	if err != nil {
		return nil, err
	}
	if hdr.Family != FamilyIntersection {
		return nil, fmt.Errorf("%w: expected intersection family %d, got %d", ErrInvalidFormat, FamilyIntersection, hdr.Family)
	}
	if len(buf) < preambleBytes*3 {
		return nil, fmt.Errorf("%w: intersection image too short", ErrInvalidFormat)
	}

	numEntries := binary.LittleEndian.Uint32(buf[8:12])
	theta := binary.LittleEndian.Uint64(buf[16:24])

	size := 0
	if hdr.LgArrLongs > 0 {
		size = int(1) << hdr.LgArrLongs
	}
	needed := preambleBytes*3 + size*8
	if len(buf) < needed {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFormat, needed, len(buf))
	}

	cache := make([]uint64, size)
	offset := preambleBytes * 3
	for i := range cache {
		cache[i] = binary.LittleEndian.Uint64(buf[offset : offset+8])
		offset += 8
	}

	return &Intersection{
		cache:      cache,
		lgArrLongs: hdr.LgArrLongs,
		theta:      theta,
		seed:       seed,
		seedHash:   hdr.SeedHash,
		numEntries: numEntries,
		empty:      hdr.IsEmptyFlag(),
		hasResult:  hdr.Flags&(1<<flagSingleItem) != 0,
	}, nil
}

// WrapIntersection reconstructs an intersection the same way
// HeapifyIntersection does; see the equivalent note on WrapUnion for
// why this isn't a true zero-copy alias.
func WrapIntersection(buf []byte, seed uint64) (*Intersection, error) {
	return HeapifyIntersection(buf, seed)
}
