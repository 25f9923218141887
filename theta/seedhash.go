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

import "fmt"

// ComputeSeedHash derives the 16-bit seed hash embedded in every
// serialized sketch and compared on every set-op Update. It must
// produce the same bit-exact value any other theta-sketch
// implementation would for the same seed, since the seed hash (not
// the seed itself) is what cross-implementation wire compatibility is
// checked against; this is the one place the core still needs a
// specific hash function, narrowly scoped to hashing the 8-byte seed
// rather than arbitrary update items (which remains out of scope).
func ComputeSeedHash(seed uint64) (uint16, error) {
	h1, _ := murmur128Int64Tail(seed)
	seedHash := uint16(h1 & 0xFFFF)
	if seedHash == 0 {
		return 0, fmt.Errorf("%w: seed %d produces a zero seed hash, choose a different seed", ErrInvalidArgument, seed)
	}
	return seedHash, nil
}

// murmur128Int64Tail computes the MurmurHash3 x64-128 digest of a
// single 8-byte input treated as a one-element int64 "slice": the
// hash state starts at zero (the slice hasher is always invoked with
// a seed of 0, independent of the value being hashed) and the lone
// value is folded in purely through the tail/finalization path, since
// a single element never fills a full two-long block.
func murmur128Int64Tail(v uint64) (uint64, uint64) {
	h1, h2 := uint64(0), uint64(0)

	const inputLengthBytes = 8 // 1 long, shifted left by 3

	h1 ^= mixK1(v)
	h2 ^= mixK2(0)
	h1 ^= inputLengthBytes
	h2 ^= inputLengthBytes
	h1 += h2
	h2 += h1
	h1 = finalMix(h1)
	h2 = finalMix(h2)
	h1 += h2
	h2 += h1
	return h1, h2
}

func mixK1(k1 uint64) uint64 {
	const c1 = 0x87c37b91114253d5
	const c2 = 0x4cf5ad432745937f
	k1 *= c1
	k1 = (k1 << 31) | (k1 >> 33)
	k1 *= c2
	return k1
}

func mixK2(k2 uint64) uint64 {
	const c1 = 0x87c37b91114253d5
	const c2 = 0x4cf5ad432745937f
	k2 *= c2
	k2 = (k2 << 33) | (k2 >> 31)
	k2 *= c1
	return k2
}

func finalMix(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
