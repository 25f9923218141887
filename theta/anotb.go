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
	"slices"
)

// ANotB is the stateful accumulator for A\B: SetA seeds the working
// set from A, and one or more subsequent NotB calls remove whatever
// each B retains. Unlike Union and Intersection, it never persists
// its own state: a destination buffer is meaningless here since the
// working set is always just A's hash list being filtered down.
type ANotB struct {
	acc      []uint64
	theta    uint64
	seed     uint64
	seedHash uint16
	empty    bool
	set      bool
}

type aNotBOptions struct {
	seed uint64
}

// ANotBOptionFunc configures an ANotB engine at construction time.
type ANotBOptionFunc func(*aNotBOptions)

// WithANotBSeed sets the update seed.
func WithANotBSeed(seed uint64) ANotBOptionFunc { return func(o *aNotBOptions) { o.seed = seed } }

// NewANotB constructs an ANotB engine with no A set yet.
func NewANotB(opts ...ANotBOptionFunc) (*ANotB, error) {
	options := &aNotBOptions{seed: DefaultSeed}
	for _, opt := range opts {
		opt(options)
	}
	return newANotBFromOptions(options)
}

func newANotBFromOptions(options *aNotBOptions) (*ANotB, error) {
	seedHash, err := ComputeSeedHash(options.seed)
	if err != nil {
		return nil, err
	}
	return &ANotB{seed: options.seed, seedHash: seedHash, theta: MaxTheta, empty: true}, nil
}

// SetA seeds (or reseeds) the accumulator from a. A nil a is an error
// that also resets the accumulator to empty, since there is no
// meaningful partial state to keep. An empty a is not an error: it
// simply resets the accumulator to the empty result, matching A\B
// where A is the empty set.
func (ab *ANotB) SetA(a Sketch) error {
	if a == nil {
		ab.set = true
		ab.reset()
		return fmt.Errorf("%w: SetA requires a non-nil sketch", ErrInvalidArgument)
	}

	aSeedHash, err := a.SeedHash()
	if err != nil {
		return err
	}
	if !a.IsEmpty() && aSeedHash != ab.seedHash {
		return fmt.Errorf("%w: A-not-B seed hash %d, A's seed hash %d", ErrSeedMismatch, ab.seedHash, aSeedHash)
	}

	ab.set = true
	ab.theta = a.Theta64()
	ab.empty = a.IsEmpty()
	ab.acc = nil
	if !ab.empty {
		for h := range a.All() {
			ab.acc = append(ab.acc, h)
		}
	}
	return nil
}

func (ab *ANotB) reset() {
	ab.theta = MaxTheta
	ab.empty = true
	ab.acc = nil
}

// NotB removes from the working set every hash b also retains under
// the running theta. A nil or empty b is a no-op: subtracting the
// empty set changes nothing.
func (ab *ANotB) NotB(b Sketch) error {
	if b == nil || b.IsEmpty() {
		return nil
	}

	bSeedHash, err := b.SeedHash()
	if err != nil {
		return err
	}
	if bSeedHash != ab.seedHash {
		return fmt.Errorf("%w: A-not-B seed hash %d, B's seed hash %d", ErrSeedMismatch, ab.seedHash, bSeedHash)
	}

	ab.theta = min(ab.theta, b.Theta64())
	if len(ab.acc) == 0 {
		ab.settleEmpty()
		return nil
	}

	var bEntries []uint64
	for h := range b.All() {
		if h > 0 && h < ab.theta {
			bEntries = append(bEntries, h)
		}
	}
	bTable, bLg := convertToHashTable(bEntries, ab.theta, rebuildThreshold)

	survivors := ab.acc[:0:0]
	for _, h := range ab.acc {
		if h == 0 || h >= ab.theta {
			continue
		}
		if _, found := searchHash(bTable, bLg, h); !found {
			survivors = append(survivors, h)
		}
	}
	ab.acc = survivors
	ab.settleEmpty()
	return nil
}

func (ab *ANotB) settleEmpty() {
	ab.empty = len(ab.acc) == 0 && ab.theta == MaxTheta
}

// GetResult compacts the current working set into a snapshot compact
// sketch. Calling it before SetA is undefined, matching the virgin
// state of the other stateful set-op engines.
func (ab *ANotB) GetResult(ordered bool) (*CompactSketch, error) {
	if !ab.set {
		return nil, fmt.Errorf("%w: GetResult called before SetA", ErrIllegalState)
	}

	entries := make([]uint64, len(ab.acc))
	copy(entries, ab.acc)
	if ordered {
		slices.Sort(entries)
	}
	return newCompactSketchFromEntries(ab.empty, ordered, ab.seedHash, ab.theta, entries), nil
}

// ANotBOneShot computes A\B in a single call: empty A yields Empty;
// empty B yields A compacted unchanged; otherwise it builds a private
// ANotB engine, runs SetA then NotB once, and finalizes.
func ANotBOneShot(a, b Sketch, seed uint64, ordered bool) (*CompactSketch, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: A must not be nil", ErrInvalidArgument)
	}

	seedHash, err := ComputeSeedHash(seed)
	if err != nil {
		return nil, err
	}

	if a.IsEmpty() {
		return EmptyCompactSketch(seedHash), nil
	}
	if b == nil || b.IsEmpty() {
		return NewCompactSketch(a, ordered), nil
	}

	engine, err := NewANotB(WithANotBSeed(seed))
	if err != nil {
		return nil, err
	}
	if err := engine.SetA(a); err != nil {
		return nil, err
	}
	if err := engine.NotB(b); err != nil {
		return nil, err
	}
	return engine.GetResult(ordered)
}
