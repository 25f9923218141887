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
)

// preambleBytes is the fixed size of every serialized image's header
// longword, regardless of family: preLongs, ser-ver, family id,
// lgArrLongs, a reserved byte, flags, and the 16-bit seed hash.
const preambleBytes = 8

// Header is the canonical (ser-ver 3) 8-byte preamble shared by every
// serialized family. Family-specific payload (retained count, p,
// theta, the single hash, or a raw cache) follows immediately after
// PreLongs*8 bytes and is decoded by each family's own codec.
type Header struct {
	PreLongs      uint8
	SerialVersion uint8
	Family        Family
	LgArrLongs    uint8
	Flags         uint8
	SeedHash      uint16
}

func (h Header) flag(bit uint8) bool { return h.Flags&(1<<bit) != 0 }

func (h Header) IsEmptyFlag() bool    { return h.flag(flagEmpty) }
func (h Header) IsCompactFlag() bool  { return h.flag(flagCompact) }
func (h Header) IsOrderedFlag() bool  { return h.flag(flagOrdered) }
func (h Header) IsReadOnlyFlag() bool { return h.flag(flagReadOnly) }

// legalPreLongs lists the preamble-length values each family accepts.
var legalPreLongs = map[Family][]uint8{
	FamilyCompact:      {1, 2, 3},
	FamilyUnion:        {3},
	FamilyIntersection: {3},
}

// ParseHeader decodes the canonical ser-ver-3 preamble from buf and
// validates it. expectedSeed, if non-nil, is compared against the
// seed hash carried by the image whenever the image is non-empty.
func ParseHeader(buf []byte, expectedSeed *uint64) (Header, error) {
	if len(buf) < preambleBytes {
		return Header{}, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidFormat, preambleBytes, len(buf))
	}

	h := Header{
		PreLongs:      buf[0],
		SerialVersion: buf[1],
		Family:        Family(buf[2]),
		LgArrLongs:    buf[3],
		Flags:         buf[5],
		SeedHash:      binary.LittleEndian.Uint16(buf[6:8]),
	}

	if h.SerialVersion != serialVersion1 && h.SerialVersion != serialVersion2 && h.SerialVersion != serialVersion3 {
		return Header{}, fmt.Errorf("%w: unsupported serial version %d", ErrInvalidFormat, h.SerialVersion)
	}
	if !h.Family.valid() {
		return Header{}, fmt.Errorf("%w: unknown family id %d", ErrInvalidFormat, h.Family)
	}
	allowed, ok := legalPreLongs[h.Family]
	if ok && !containsU8(allowed, h.PreLongs) {
		return Header{}, fmt.Errorf("%w: preLongs %d not legal for family %d", ErrInvalidFormat, h.PreLongs, h.Family)
	}
	if len(buf) < int(h.PreLongs)*8 {
		return Header{}, fmt.Errorf("%w: preamble claims %d longs, buffer has %d bytes", ErrInvalidFormat, h.PreLongs, len(buf))
	}

	if expectedSeed != nil && !h.IsEmptyFlag() {
		expected, err := ComputeSeedHash(*expectedSeed)
		if err != nil {
			return Header{}, err
		}
		if h.SeedHash != expected {
			return Header{}, fmt.Errorf("%w: expected %d, got %d", ErrSeedMismatch, expected, h.SeedHash)
		}
	}

	return h, nil
}

// WriteHeader emits the 8-byte canonical preamble into dst[0:8].
func WriteHeader(dst []byte, h Header) {
	dst[0] = h.PreLongs
	dst[1] = h.SerialVersion
	dst[2] = byte(h.Family)
	dst[3] = h.LgArrLongs
	dst[4] = 0
	dst[5] = h.Flags
	binary.LittleEndian.PutUint16(dst[6:8], h.SeedHash)
}

// IsSingleItem reports whether the header describes a single-entry
// compact sketch. Detection requires the dedicated flag bit and the
// shape tuple (preLongs=1, ser-ver 3, compact family, ordered,
// compact, read-only, not empty) to agree; disagreement is a format error.
func IsSingleItem(h Header) (bool, error) {
	byFlag := h.Flags&(1<<flagSingleItem) != 0
	byShape := h.PreLongs == 1 &&
		h.SerialVersion == serialVersion3 &&
		h.Family == FamilyCompact &&
		h.IsOrderedFlag() &&
		h.IsCompactFlag() &&
		h.IsReadOnlyFlag() &&
		!h.IsEmptyFlag()

	if byFlag != byShape {
		return false, fmt.Errorf("%w: single-item flag disagrees with preamble shape", ErrInvalidFormat)
	}
	return byFlag, nil
}

func containsU8(xs []uint8, v uint8) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
