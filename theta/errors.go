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

import "errors"

// Sentinel error kinds. Call sites test against these with errors.Is;
// the wrapping fmt.Errorf call sites add the offending values.
var (
	// ErrInvalidArgument covers nil-where-required, out-of-range
	// configuration, undersized destination buffers, and an A-not-B
	// builder given a destination buffer.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSeedMismatch is raised when an input's seed hash differs from
	// the accumulator's or the decoder's expected seed hash.
	ErrSeedMismatch = errors.New("seed hash mismatch")

	// ErrInvalidFormat covers any structural defect in a serialized
	// image: unknown family or serial version, inconsistent preLongs,
	// flag/shape disagreement, or a corrupt entry count.
	ErrInvalidFormat = errors.New("invalid serialized format")

	// ErrIllegalState covers calling GetResult on a virgin intersection
	// and serializing a sketch whose Empty/NumRetained invariant is violated.
	ErrIllegalState = errors.New("illegal state")

	// ErrCapacityExceeded is raised when a memory-backed union needs to
	// grow but the configured memory-request callback declines.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)
