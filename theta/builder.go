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

// Builder gathers the configuration shared by every set-op engine
// (nominal entries, seed, sampling probability, resize factor) behind
// one functional-options surface, so callers configure once and pick
// the family at Build time instead of repeating options per-engine.
type Builder struct {
	nomEntries uint32
	seed       uint64
	p          float32
	rf         ResizeFactor
	memReq     MemoryRequestServer
}

// BuilderOptionFunc configures a Builder.
type BuilderOptionFunc func(*Builder)

// NewBuilder constructs a Builder with the library's defaults.
func NewBuilder(opts ...BuilderOptionFunc) *Builder {
	b := &Builder{
		nomEntries: uint32(1) << DefaultLgK,
		seed:       DefaultSeed,
		p:          1.0,
		rf:         DefaultResizeFactor,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithNomEntries sets the nominal entries target; it is coerced up to
// the next power of two and clamped into [2^MinLgK, 2^MaxLgK] at Build time.
func WithNomEntries(nomEntries uint32) BuilderOptionFunc {
	return func(b *Builder) { b.nomEntries = nomEntries }
}

// WithSeed sets the 64-bit update seed shared by every family.
func WithSeed(seed uint64) BuilderOptionFunc {
	return func(b *Builder) { b.seed = seed }
}

// WithP sets the initial sampling probability for a Union's starting theta.
func WithP(p float32) BuilderOptionFunc {
	return func(b *Builder) { b.p = p }
}

// WithResizeFactor sets the growth factor applied to a Union's working cache.
func WithResizeFactor(rf ResizeFactor) BuilderOptionFunc {
	return func(b *Builder) { b.rf = rf }
}

// WithMemoryRequestServer installs the callback consulted when a
// memory-backed Union (built with a non-nil dstBuf) needs to grow
// beyond its current buffer. Declining growth fails the triggering
// Update with ErrCapacityExceeded.
func WithMemoryRequestServer(server MemoryRequestServer) BuilderOptionFunc {
	return func(b *Builder) { b.memReq = server }
}

func (b *Builder) lgNomLongs() uint8 {
	lg := log2Floor(b.nomEntries)
	if uint32(1)<<lg < b.nomEntries {
		lg++
	}
	if lg < MinLgK {
		lg = MinLgK
	}
	if lg > MaxLgK {
		lg = MaxLgK
	}
	return lg
}

// BuildUnion constructs a Union from the builder's configuration. A
// non-nil dstBuf makes the union memory-backed: its working cache is
// capped to dstBuf's capacity (in 8-byte longs) unless the builder's
// MemoryRequestServer approves growth.
func (b *Builder) BuildUnion(dstBuf []byte) (*Union, error) {
	u, err := NewUnion(
		WithUnionLgK(b.lgNomLongs()),
		WithUnionResizeFactor(b.rf),
		WithUnionSketchP(b.p),
		WithUnionSeed(b.seed),
	)
	if err != nil {
		return nil, err
	}
	if dstBuf != nil {
		capLongs := len(dstBuf) / 8
		if capLongs < int(1)<<u.table.lgCurSize {
			return nil, fmt.Errorf("%w: destination buffer holds %d longs, union needs at least %d to start", ErrInvalidArgument, capLongs, int(1)<<u.table.lgCurSize)
		}
		u.table.capLongs = capLongs
		u.table.memRequest = b.memReq
	}
	return u, nil
}

// BuildIntersection constructs an Intersection from the builder's seed.
// Intersection never grows past its probe-determined size, so it has
// no memory-backed mode distinct from its heap-backed one.
func (b *Builder) BuildIntersection() (*Intersection, error) {
	return NewIntersection(WithIntersectionSeed(b.seed))
}

// BuildANotB constructs an ANotB engine. A-not-B never persists its own
// state, so a destination buffer is meaningless; callers asking for one
// have misunderstood the engine and get ErrInvalidArgument back rather
// than a silently ignored buffer.
func (b *Builder) BuildANotB(dstBuf []byte) (*ANotB, error) {
	if dstBuf != nil {
		return nil, fmt.Errorf("%w: A-not-B does not persist state, pass a nil destination buffer", ErrInvalidArgument)
	}
	return NewANotB(WithANotBSeed(b.seed))
}

// MaxUnionBytes returns the worst-case serialized size of a union's
// persisted image for the given nominal entries, rounded up to the
// union's resize-factor-driven starting capacity's maximum growth.
func MaxUnionBytes(nomEntries uint32) int {
	lg := log2Floor(nomEntries)
	if uint32(1)<<lg < nomEntries {
		lg++
	}
	return preambleBytes*3 + (int(1)<<(lg+1))*8
}

// MaxIntersectionBytes returns the worst-case serialized size of an
// intersection's persisted image for the given nominal entries.
func MaxIntersectionBytes(nomEntries uint32) int {
	lg := lgSizeFromCount(nomEntries, rebuildThreshold)
	return preambleBytes*3 + (int(1)<<lg)*8
}

// MaxAnotBResultBytes returns the worst-case serialized size of an
// A-not-B one-shot result for a maximum of maxNomEntries survivors.
func MaxAnotBResultBytes(maxNomEntries uint32) int {
	return 24 + 15*int(ceilPow2(maxNomEntries))
}

func ceilPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	lg := log2Floor(n)
	if uint32(1)<<lg < n {
		lg++
	}
	return uint32(1) << lg
}
