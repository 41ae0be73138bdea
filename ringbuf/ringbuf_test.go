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

package ringbuf

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyAndFull(t *testing.T) {
	r := New(8)
	defer r.Close()

	assert.Equal(t, 0, r.Size())
	s1, s2 := r.PushInquire()
	assert.Equal(t, 8, len(s1)+len(s2))

	require.NoError(t, r.Push(8))
	assert.Equal(t, 8, r.Size())

	// Full: push side must advertise zero room.
	s1, s2 = r.PushInquire()
	assert.Equal(t, 0, len(s1)+len(s2))

	s1, s2 = r.PopInquire()
	assert.Equal(t, 8, len(s1)+len(s2))
	require.NoError(t, r.Pop(8))
	assert.Equal(t, 0, r.Size())
}

func TestOverflowUnderflow(t *testing.T) {
	r := New(4)
	defer r.Close()

	s1, s2 := r.PushInquire()
	require.Equal(t, 4, len(s1)+len(s2))
	err := r.Push(5)
	assert.ErrorIs(t, err, ErrOverflow)

	require.NoError(t, r.Push(2))
	err = r.Pop(3)
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestWrapSegmentShape(t *testing.T) {
	r := New(8)
	defer r.Close()

	require.NoError(t, r.Push(6))
	require.NoError(t, r.Pop(6))
	// pushNext == popNext == 6, buffer empty: a push that wraps must
	// produce two segments whose ends meet storage's boundaries.
	s1, s2 := r.PushInquire()
	require.NotNil(t, s2)
	assert.Equal(t, 8, cap(r.buf))
	// seg1 ends at storage end, seg2 starts at storage begin.
	assert.Equal(t, &r.buf[len(r.buf)-1], &s1[len(s1)-1])
	assert.Equal(t, &r.buf[0], &s2[0])
}

// TestInvariants is a randomized push/pop driver checking that every
// byte committed through Push comes back out through Pop in the same
// order, with Size staying consistent with the advertised free space
// and occupancy at each step.
func TestInvariants(t *testing.T) {
	const capacity = 37
	r := New(capacity)
	defer r.Close()

	var produced, consumed []byte
	next := byte(0)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5000; i++ {
		s1, s2 := r.PushInquire()
		free := len(s1) + len(s2)
		assert.Equal(t, capacity-r.Size(), free, "push_inquire total + size should equal capacity")

		if free > 0 {
			n := rng.Intn(free) + 1
			written := 0
			for written < n {
				if written < len(s1) {
					s1[written] = next
				} else {
					s2[written-len(s1)] = next
				}
				produced = append(produced, next)
				next++
				written++
			}
			require.NoError(t, r.Push(n))
		}

		p1, p2 := r.PopInquire()
		assert.Equal(t, r.Size(), len(p1)+len(p2), "pop_inquire total should equal size")

		occ := len(p1) + len(p2)
		if occ > 0 {
			n := rng.Intn(occ) + 1
			read := 0
			for read < n {
				if read < len(p1) {
					consumed = append(consumed, p1[read])
				} else {
					consumed = append(consumed, p2[read-len(p1)])
				}
				read++
			}
			require.NoError(t, r.Pop(n))
		}
	}

	// Drain whatever remains so the round trip is byte-identical.
	for r.Size() > 0 {
		p1, p2 := r.PopInquire()
		consumed = append(consumed, p1...)
		consumed = append(consumed, p2...)
		require.NoError(t, r.Pop(len(p1)+len(p2)))
	}

	if diff := cmp.Diff(produced, consumed); diff != "" {
		t.Fatalf("round trip mismatch (-produced +consumed):\n%s", diff)
	}
}

func TestValidatorHook(t *testing.T) {
	r := New(8)
	defer r.Close()

	var seen []byte
	r.SetValidator(func(region []byte, count int) {
		seen = append(seen, region[:count]...)
	})

	s1, _ := r.PushInquire()
	copy(s1, []byte{1, 2, 3})
	require.NoError(t, r.Push(3))
	assert.Equal(t, []byte{1, 2, 3}, seen)
}
