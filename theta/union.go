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

	"github.com/thetasketch/thetacore/internal/quickselect"
)

// Union is the stateful accumulator for A∪B∪...: every Update
// incorporates one more input sketch under a shrinking theta, and
// GetResult materializes the current working set as a compact sketch
// without disturbing it.
type Union struct {
	table     *growingTable
	seed      uint64
	seedHash  uint16
	lgNomSize uint8
	p         float32
	empty     bool
}

type unionOptions struct {
	seed uint64
	p    float32
	lgK  uint8
	rf   ResizeFactor
}

// UnionOptionFunc configures a Union at construction time.
type UnionOptionFunc func(*unionOptions)

// WithUnionLgK sets log2(nomEntries).
func WithUnionLgK(lgK uint8) UnionOptionFunc { return func(o *unionOptions) { o.lgK = lgK } }

// WithUnionResizeFactor sets the growth factor applied to the working cache.
func WithUnionResizeFactor(rf ResizeFactor) UnionOptionFunc {
	return func(o *unionOptions) { o.rf = rf }
}

// WithUnionSketchP sets the initial sampling probability (starting theta).
func WithUnionSketchP(p float32) UnionOptionFunc { return func(o *unionOptions) { o.p = p } }

// WithUnionSeed sets the update seed. Unions built with different seeds
// can never be mixed: every Update checks seedHash first.
func WithUnionSeed(seed uint64) UnionOptionFunc { return func(o *unionOptions) { o.seed = seed } }

// NewUnion constructs a Union ready to accept updates.
func NewUnion(opts ...UnionOptionFunc) (*Union, error) {
	options := &unionOptions{lgK: DefaultLgK, rf: DefaultResizeFactor, p: 1.0, seed: DefaultSeed}
	for _, opt := range opts {
		opt(options)
	}
	return newUnionFromOptions(options)
}

func newUnionFromOptions(options *unionOptions) (*Union, error) {
	if options.lgK < MinLgK || options.lgK > MaxLgK {
		return nil, fmt.Errorf("%w: lgK must be in [%d, %d], got %d", ErrInvalidArgument, MinLgK, MaxLgK, options.lgK)
	}
	if options.p <= 0 || options.p > 1 {
		return nil, fmt.Errorf("%w: sampling probability must be in (0, 1], got %g", ErrInvalidArgument, options.p)
	}

	seedHash, err := ComputeSeedHash(options.seed)
	if err != nil {
		return nil, err
	}

	lgCurSize := startingSubMultiple(options.lgK+1, MinLgK, uint8(options.rf))
	theta := startingThetaFromP(options.p)

	return &Union{
		table:     newGrowingTable(lgCurSize, options.lgK, options.rf, theta),
		seed:      options.seed,
		seedHash:  seedHash,
		lgNomSize: options.lgK,
		p:         options.p,
		empty:     true,
	}, nil
}

// Update folds sketch into the accumulator. A nil or empty sketch
// leaves the accumulator's empty flag untouched (union with the
// empty set is the identity); any prior non-empty update already
// cleared it.
func (u *Union) Update(sketch Sketch) error {
	if sketch == nil || sketch.IsEmpty() {
		return nil
	}

	sketchSeedHash, err := sketch.SeedHash()
	if err != nil {
		return err
	}
	if sketchSeedHash != u.seedHash {
		return fmt.Errorf("%w: union seed hash %d, input seed hash %d", ErrSeedMismatch, u.seedHash, sketchSeedHash)
	}

	snap := u.table.snapshot()
	wasEmpty := u.empty

	u.empty = false
	u.table.theta = min(u.table.theta, sketch.Theta64())

	for h := range sketch.All() {
		if h == 0 || h >= u.table.theta {
			if sketch.IsOrdered() {
				break
			}
			continue
		}
		if err := u.table.insert(h); err != nil {
			u.table.restore(snap)
			u.empty = wasEmpty
			return err
		}
	}
	return nil
}

// GetResult compacts the current working set into a snapshot compact
// sketch; the accumulator itself is left untouched and can keep
// accepting updates afterward.
func (u *Union) GetResult(ordered bool) (*CompactSketch, error) {
	if u.empty {
		return EmptyCompactSketch(u.seedHash), nil
	}

	theta := u.table.theta
	nominal := uint32(1) << u.lgNomSize

	entries := compactCache(u.table.entries, theta, false)
	if uint32(len(entries)) > nominal {
		quickSelectToNominal(entries, nominal)
		theta = entries[nominal]
		entries = entries[:nominal]
	}
	if ordered {
		slices.Sort(entries)
	}

	return newCompactSketchFromEntries(len(entries) == 0 && theta == MaxTheta, ordered, u.seedHash, theta, entries), nil
}

// Reset discards all accumulated state, returning the union to the
// configuration it was constructed with.
func (u *Union) Reset() {
	startTheta := startingThetaFromP(u.p)
	lgCurSize := startingSubMultiple(u.lgNomSize+1, MinLgK, uint8(u.table.rf))
	u.table.reset(lgCurSize, startTheta)
	u.empty = true
}

// ToBytes persists the union's full working cache: a 3-long preamble
// (entry count and nominal lgK packed into long 1, theta in long 2)
// followed by the 2^lgArrLongs raw cache longs, including empty slots.
func (u *Union) ToBytes() ([]byte, error) {
	size := preambleBytes*3 + len(u.table.entries)*8
	dst := make([]byte, size)

	flags := uint8(0)
	if u.empty {
		flags |= 1 << flagEmpty
	}

	WriteHeader(dst, Header{
		PreLongs:      3,
		SerialVersion: serialVersion3,
		Family:        FamilyUnion,
		LgArrLongs:    u.table.lgCurSize,
		Flags:         flags,
		SeedHash:      u.seedHash,
	})

	binary.LittleEndian.PutUint32(dst[8:12], u.table.numEntries)
	dst[12] = u.lgNomSize
	dst[13] = uint8(u.table.rf)
	binary.LittleEndian.PutUint64(dst[16:24], u.table.theta)

	offset := preambleBytes * 3
	for _, h := range u.table.entries {
		binary.LittleEndian.PutUint64(dst[offset:offset+8], h)
		offset += 8
	}
	return dst, nil
}

// HeapifyUnion reconstructs a mutable Union from a buffer written by
// ToBytes, copying the working cache onto the heap.
func HeapifyUnion(buf []byte, seed uint64) (*Union, error) {
	hdr, err := ParseHeader(buf, &seed)
	if err != nil {
		return nil, err
	}
	if hdr.Family != FamilyUnion {
		return nil, fmt.Errorf("%w: expected union family %d, got %d", ErrInvalidFormat, FamilyUnion, hdr.Family)
	}
	if len(buf) < preambleBytes*3 {
		return nil, fmt.Errorf("%w: union image too short", ErrInvalidFormat)
	}

	numEntries := binary.LittleEndian.Uint32(buf[8:12])
	lgNomSize := buf[12]
	rf := ResizeFactor(buf[13])
	theta := binary.LittleEndian.Uint64(buf[16:24])

	size := int(1) << hdr.LgArrLongs
	needed := preambleBytes*3 + size*8
	if len(buf) < needed {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFormat, needed, len(buf))
	}

	entries := make([]uint64, size)
	offset := preambleBytes * 3
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint64(buf[offset : offset+8])
		offset += 8
	}

	return &Union{
		table: &growingTable{
			entries:    entries,
			theta:      theta,
			numEntries: numEntries,
			lgCurSize:  hdr.LgArrLongs,
			lgNomSize:  lgNomSize,
			rf:         rf,
		},
		seed:      seed,
		seedHash:  hdr.SeedHash,
		lgNomSize: lgNomSize,
		p:         1.0,
		empty:     hdr.IsEmptyFlag(),
	}, nil
}

// WrapUnion reconstructs a union from a serialized image the same way
// HeapifyUnion does. Mutating an aliased buffer in place would need
// the typed-buffer write path the Memory abstraction provides, which
// is out of scope here, so wrapping a union always takes a private
// working copy rather than truly aliasing the caller's bytes.
func WrapUnion(buf []byte, seed uint64) (*Union, error) {
	return HeapifyUnion(buf, seed)
}

func quickSelectToNominal(entries []uint64, nominal uint32) {
	if len(entries) == 0 {
		return
	}
	quickselect.Select(entries, 0, len(entries)-1, int(nominal))
}
