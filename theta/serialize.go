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

// preambleLongs picks preLongs per the layout table in the wire
// format: 3 whenever in estimation mode (theta carried explicitly), 1
// for empty or a single exact-mode entry, 2 otherwise.
func (s *CompactSketch) preambleLongs() uint8 {
	if s.IsEstimationMode() {
		return 3
	}
	if s.empty || len(s.entries) == 1 {
		return 1
	}
	return 2
}

func (s *CompactSketch) serializedSizeBytes(preLongs uint8) int {
	if s.empty {
		return preambleBytes
	}
	if preLongs == 1 {
		return preambleBytes * 2 // single exact-mode hash stored right after the preamble
	}
	return int(preLongs)*preambleBytes + len(s.entries)*8
}

// ToBytes emits the canonical ser-ver 3 serialized image. It refuses
// to serialize a sketch whose empty flag disagrees with its retained
// count, since that combination can never arise from a legal update
// sequence and would produce an unreadable image.
func (s *CompactSketch) ToBytes() ([]byte, error) {
	if s.empty && len(s.entries) > 0 {
		return nil, fmt.Errorf("%w: empty sketch carries %d retained entries", ErrIllegalState, len(s.entries))
	}

	preLongs := s.preambleLongs()
	dst := make([]byte, s.serializedSizeBytes(preLongs))

	flags := uint8(1<<flagCompact | 1<<flagReadOnly)
	if s.empty {
		flags |= 1 << flagEmpty
	}
	if s.ordered {
		flags |= 1 << flagOrdered
	}
	singleItem := preLongs == 1 && !s.empty
	if singleItem {
		flags |= 1 << flagSingleItem
	}

	WriteHeader(dst, Header{
		PreLongs:      preLongs,
		SerialVersion: serialVersion3,
		Family:        FamilyCompact,
		LgArrLongs:    0,
		Flags:         flags,
		SeedHash:      s.seedHash,
	})

	switch {
	case s.empty:
		return dst, nil
	case singleItem:
		binary.LittleEndian.PutUint64(dst[preambleBytes:preambleBytes+8], s.entries[0])
	default:
		offset := preambleBytes
		binary.LittleEndian.PutUint32(dst[offset:offset+4], uint32(len(s.entries)))
		offset += 8 // 4 bytes count + 4 unused (legacy p slot)
		if preLongs == 3 {
			binary.LittleEndian.PutUint64(dst[offset:offset+8], s.theta)
			offset += 8
		}
		for _, h := range s.entries {
			binary.LittleEndian.PutUint64(dst[offset:offset+8], h)
			offset += 8
		}
	}
	return dst, nil
}

// Heapify decodes a serialized compact sketch image, copying its
// hashes onto the heap. It accepts ser-ver 1, 2, and 3 images,
// upgrading legacy layouts to the ser-ver 3 in-memory representation.
func Heapify(buf []byte, seed uint64) (*CompactSketch, error) {
	if len(buf) < preambleBytes {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidFormat, preambleBytes, len(buf))
	}
	if Family(buf[2]) != FamilyCompact {
		return nil, fmt.Errorf("%w: expected compact family %d, got %d", ErrInvalidFormat, FamilyCompact, buf[2])
	}

	switch buf[1] {
	case serialVersion3:
		return decodeV3(buf, &seed)
	case serialVersion2:
		return decodeV2(buf)
	case serialVersion1:
		return decodeV1(buf, seed)
	default:
		return nil, fmt.Errorf("%w: unsupported serial version %d", ErrInvalidFormat, buf[1])
	}
}

func decodeV3(buf []byte, expectedSeed *uint64) (*CompactSketch, error) {
	hdr, err := ParseHeader(buf, expectedSeed)
	if err != nil {
		return nil, err
	}

	if hdr.IsEmptyFlag() {
		return EmptyCompactSketch(hdr.SeedHash), nil
	}

	single, err := IsSingleItem(hdr)
	if err != nil {
		return nil, err
	}
	if single {
		if len(buf) < preambleBytes*2 {
			return nil, fmt.Errorf("%w: single-item image too short", ErrInvalidFormat)
		}
		h := binary.LittleEndian.Uint64(buf[preambleBytes : preambleBytes+8])
		return newCompactSketchFromEntries(false, true, hdr.SeedHash, MaxTheta, []uint64{h}), nil
	}
	if hdr.PreLongs == 1 {
		return nil, fmt.Errorf("%w: preLongs 1 without empty or single-item flag", ErrInvalidFormat)
	}
	if !hdr.IsCompactFlag() || !hdr.IsReadOnlyFlag() {
		return nil, fmt.Errorf("%w: compact family image missing compact/read-only flags", ErrInvalidFormat)
	}

	hasTheta := hdr.PreLongs > 2
	theta := MaxTheta
	numEntries := binary.LittleEndian.Uint32(buf[preambleBytes : preambleBytes+4])

	entriesOffset := preambleBytes + 8
	if hasTheta {
		if len(buf) < preambleBytes+16 {
			return nil, fmt.Errorf("%w: estimation-mode preamble too short", ErrInvalidFormat)
		}
		theta = binary.LittleEndian.Uint64(buf[preambleBytes+8 : preambleBytes+16])
		entriesOffset = preambleBytes + 16
	}

	needed := entriesOffset + int(numEntries)*8
	if len(buf) < needed {
		return nil, fmt.Errorf("%w: need %d bytes for %d entries, got %d", ErrInvalidFormat, needed, numEntries, len(buf))
	}

	entries := make([]uint64, numEntries)
	for i := range entries {
		off := entriesOffset + i*8
		entries[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}

	return newCompactSketchFromEntries(false, hdr.IsOrderedFlag(), hdr.SeedHash, theta, entries), nil
}

// decodeV2 handles the legacy ser-ver 2 layout, which does carry its
// own seed-hash field (unlike ser-ver 1) but predates the ordered flag:
// every ser-ver 2 image on record was written in sorted order.
func decodeV2(buf []byte) (*CompactSketch, error) {
	preLongs := buf[0]
	seedHash := binary.LittleEndian.Uint16(buf[6:8])

	switch preLongs {
	case 1:
		return EmptyCompactSketch(seedHash), nil
	case 2:
		numEntries := binary.LittleEndian.Uint32(buf[8:12])
		if numEntries == 0 {
			return EmptyCompactSketch(seedHash), nil
		}
		needed := 16 + int(numEntries)*8
		if len(buf) < needed {
			return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFormat, needed, len(buf))
		}
		entries := readEntries(buf, 16, numEntries)
		return newCompactSketchFromEntries(false, true, seedHash, MaxTheta, entries), nil
	case 3:
		numEntries := binary.LittleEndian.Uint32(buf[8:12])
		theta := binary.LittleEndian.Uint64(buf[16:24])
		if numEntries == 0 && theta == MaxTheta {
			return EmptyCompactSketch(seedHash), nil
		}
		needed := 24 + int(numEntries)*8
		if len(buf) < needed {
			return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFormat, needed, len(buf))
		}
		entries := readEntries(buf, 24, numEntries)
		return newCompactSketchFromEntries(false, true, seedHash, theta, entries), nil
	default:
		return nil, fmt.Errorf("%w: invalid ser-ver 2 preLongs %d", ErrInvalidFormat, preLongs)
	}
}

// decodeV1 handles the oldest layout, which carries no seed-hash field
// at all. Matching upstream's historical behavior, the seed hash is
// always synthesized from the library default seed, ignoring whatever
// seed the caller passes to Heapify: this is a documented quirk kept
// for forward compatibility with images this old, not an oversight.
func decodeV1(buf []byte, _ uint64) (*CompactSketch, error) {
	seedHash, err := ComputeSeedHash(DefaultSeed)
	if err != nil {
		return nil, err
	}

	numEntries := binary.LittleEndian.Uint32(buf[8:12])
	theta := binary.LittleEndian.Uint64(buf[16:24])

	if numEntries == 0 && theta == MaxTheta {
		return EmptyCompactSketch(seedHash), nil
	}

	needed := 24 + int(numEntries)*8
	if len(buf) < needed {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidFormat, needed, len(buf))
	}
	entries := readEntries(buf, 24, numEntries)
	return newCompactSketchFromEntries(false, true, seedHash, theta, entries), nil
}

func readEntries(buf []byte, offset int, numEntries uint32) []uint64 {
	entries := make([]uint64, numEntries)
	for i := range entries {
		off := offset + i*8
		entries[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}
	return entries
}
