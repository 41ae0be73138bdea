// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ringbuf implements a single-producer/single-consumer ring
// buffer exposing a segmented inquire/commit protocol on both the push
// (producer) and pop (consumer) sides, so a caller can hand up to two
// contiguous regions to vectored I/O instead of shuffling bytes at the
// wrap boundary.
package ringbuf

import (
	"errors"
	"fmt"

	"github.com/bytedance/gopkg/lang/mcache"
)

// ErrOverflow is returned by Push when n exceeds the ring's free space
// at the time of the call. Push does not compare n with the regions
// PushInquire last returned.
var ErrOverflow = errors.New("ringbuf: push overflow")

// ErrUnderflow is returned by Pop when n exceeds the ring's occupancy
// at the time of the call. Pop does not compare n with the regions
// PopInquire last returned.
var ErrUnderflow = errors.New("ringbuf: pop underflow")

// Validator inspects a committed region, for property-based tests.
// Production code never sets one.
type Validator func(region []byte, count int)

// Ring is a fixed-capacity SPSC byte ring buffer. The zero value is not
// usable; construct with New. A Ring has a single owner and must not be
// shared across more than one producer and one consumer goroutine.
type Ring struct {
	buf   []byte
	empty bool

	pushNext int
	popNext  int

	pushes uint64
	pops   uint64

	lastPushSeg1, lastPushSeg2 []byte
	lastPopSeg1, lastPopSeg2   []byte

	validate Validator
}

// New allocates a ring of the given capacity. The backing array comes
// from mcache, an existing chunk-buffer pool, so common
// capacities are recycled across sessions instead of being reallocated
// and GC'd every time.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	buf := mcache.Malloc(capacity)
	return &Ring{
		buf:   buf[:capacity],
		empty: true,
	}
}

// Close releases the backing storage back to mcache. The Ring must not
// be used afterward.
func (r *Ring) Close() {
	if r.buf != nil {
		mcache.Free(r.buf)
		r.buf = nil
	}
}

// SetValidator installs a test-only hook invoked on every region
// committed via Push or Pop. Production callers never call this.
func (r *Ring) SetValidator(v Validator) {
	r.validate = v
}

// Capacity returns the fixed capacity of the ring.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// Size returns the current occupancy.
func (r *Ring) Size() int {
	if r.empty {
		return 0
	}
	if r.pushNext > r.popNext {
		return r.pushNext - r.popNext
	}
	if r.pushNext < r.popNext {
		return len(r.buf) - r.popNext + r.pushNext
	}
	// pushNext == popNext and not empty: full.
	return len(r.buf)
}

// Pushes returns the number of successful Push calls (with n>0).
func (r *Ring) Pushes() uint64 { return r.pushes }

// Pops returns the number of successful Pop calls (with n>0).
func (r *Ring) Pops() uint64 { return r.pops }

// PushInquire returns up to two disjoint writable regions. Their
// combined length equals the current free space. seg2 is empty (nil or
// zero-length) when a single segment suffices.
func (r *Ring) PushInquire() (seg1, seg2 []byte) {
	free := len(r.buf) - r.Size()
	if free == 0 {
		r.lastPushSeg1, r.lastPushSeg2 = nil, nil
		return nil, nil
	}
	if r.pushNext < r.popNext {
		// Wrap in effect: free space is the single gap between them.
		seg1 = r.buf[r.pushNext:r.popNext]
	} else {
		// pushNext >= popNext, including the empty case where they're equal:
		// free space runs from pushNext to the end, then wraps to popNext.
		seg1 = r.buf[r.pushNext:]
		seg2 = r.buf[:r.popNext]
	}
	r.lastPushSeg1, r.lastPushSeg2 = seg1, seg2
	return seg1, seg2
}

// Push commits n bytes written into the regions most recently returned
// by PushInquire.
func (r *Ring) Push(n int) error {
	if n < 0 {
		return fmt.Errorf("ringbuf: negative push count %d", n)
	}
	if n == 0 {
		return nil
	}
	free := len(r.buf) - r.Size()
	if n > free {
		return fmt.Errorf("%w: committed %d, free %d", ErrOverflow, n, free)
	}
	if r.validate != nil {
		validateRegion(r.lastPushSeg1, r.lastPushSeg2, n, r.validate)
	}
	r.pushNext = (r.pushNext + n) % len(r.buf)
	r.pushes++
	r.empty = false
	return nil
}

// PopInquire returns up to two disjoint readable regions. Their
// combined length equals the current occupancy. seg2 is empty (nil or
// zero-length) when a single segment suffices.
func (r *Ring) PopInquire() (seg1, seg2 []byte) {
	occ := r.Size()
	if occ == 0 {
		r.lastPopSeg1, r.lastPopSeg2 = nil, nil
		return nil, nil
	}
	if r.pushNext > r.popNext {
		seg1 = r.buf[r.popNext:r.pushNext]
	} else {
		// pushNext <= popNext, including the full case where they're equal:
		// data runs from popNext to the end, then wraps to pushNext.
		seg1 = r.buf[r.popNext:]
		seg2 = r.buf[:r.pushNext]
	}
	r.lastPopSeg1, r.lastPopSeg2 = seg1, seg2
	return seg1, seg2
}

// Pop commits n bytes read from the regions most recently returned by
// PopInquire.
func (r *Ring) Pop(n int) error {
	if n < 0 {
		return fmt.Errorf("ringbuf: negative pop count %d", n)
	}
	if n == 0 {
		return nil
	}
	occ := r.Size()
	if n > occ {
		return fmt.Errorf("%w: committed %d, occupied %d", ErrUnderflow, n, occ)
	}
	if r.validate != nil {
		validateRegion(r.lastPopSeg1, r.lastPopSeg2, n, r.validate)
	}
	r.popNext = (r.popNext + n) % len(r.buf)
	r.pops++
	if r.popNext == r.pushNext {
		r.empty = true
	}
	return nil
}

func validateRegion(seg1, seg2 []byte, n int, v Validator) {
	if n <= len(seg1) {
		v(seg1[:n], n)
		return
	}
	v(seg1, len(seg1))
	v(seg2[:n-len(seg1)], n-len(seg1))
}
