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
	"context"
	"sync/atomic"
)

// ConcurrentSharedSketch is the contract for a multi-writer theta
// sketch: many producer goroutines propagate buffers or single hashes
// concurrently while readers observe a monotonically non-increasing
// volatile theta. Only the interface is specified here; no
// implementation is provided.
//
// At most one eager propagation may be in flight at a time. Lazy
// propagations may be handed off to a bounded worker pool keyed by
// id mod N; each caller-owned local buffer signals completion through
// its own atomic flag rather than through a channel or callback.
// Propagation ordering is not guaranteed, and propagating the same
// hash twice must be idempotent so concurrent retries never corrupt
// the shared state. Cancellation mid-propagation is not supported:
// callers awaiting shutdown must drain outstanding background work via
// AwaitBackgroundPropagationTermination first.
type ConcurrentSharedSketch interface {
	// Propagate folds every retained hash of buf into the shared
	// sketch. eager selects the exclusive, synchronous path; a
	// non-eager call may be queued to a background worker instead,
	// completion observable through done.
	Propagate(ctx context.Context, buf Sketch, eager bool, done *AtomicFlag) error

	// PropagateHash folds a single hash into the shared sketch under
	// the same eager/lazy choice and completion signal as Propagate.
	PropagateHash(ctx context.Context, hash uint64, eager bool, done *AtomicFlag) error

	// VolatileTheta returns the shared sketch's current theta. Readers
	// observing this value concurrently with in-flight propagations
	// may see any theta no larger than the one at their propagation's
	// start; it never increases.
	VolatileTheta() uint64

	// StartEagerPropagation acquires exclusive access for one eager
	// propagation, blocking until any propagation already in flight
	// completes. EndPropagation releases it.
	StartEagerPropagation()
	EndPropagation()

	// AwaitBackgroundPropagationTermination blocks until every
	// previously queued lazy propagation has completed, for orderly
	// shutdown.
	AwaitBackgroundPropagationTermination()
}

// AtomicFlag is the caller-owned completion signal a background
// propagation sets once it has folded its buffer into the shared
// sketch.
type AtomicFlag struct {
	set atomic.Bool
}

// NewAtomicFlag returns a flag in the unset state.
func NewAtomicFlag() *AtomicFlag { return &AtomicFlag{} }

// Set marks the flag as completed. Safe to call from the propagating goroutine.
func (f *AtomicFlag) Set() { f.set.Store(true) }

// IsSet reports whether Set has been called. Safe to call from any goroutine.
func (f *AtomicFlag) IsSet() bool { return f.set.Load() }
