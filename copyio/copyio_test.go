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

//go:build linux

package copyio

import (
	"math/rand"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type boolFlag struct{ v atomic.Bool }

func (f *boolFlag) Load() bool { return f.v.Load() }

func nonblockingPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, syscall.Pipe(fds[:]))
	require.NoError(t, setNonblock(fds[0]))
	require.NoError(t, setNonblock(fds[1]))
	t.Cleanup(func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	})
	return fds[0], fds[1]
}

// TestRoundTrip copies a payload larger than the ring buffer across a
// pipe and checks it arrives unchanged and Copy reports EOF cleanly.
func TestRoundTrip(t *testing.T) {
	readR, readW := nonblockingPipe(t)
	writeR, writeW := nonblockingPipe(t)

	payload := make([]byte, 64*1024)
	rng := rand.New(rand.NewSource(42))
	rng.Read(payload)

	flag := &boolFlag{}
	flag.v.Store(true)

	done := make(chan struct{})
	var counters Counters
	var copyErr error
	go func() {
		defer close(done)
		counters, copyErr = Copy(readR, writeW, flag, 50*time.Millisecond, 4096, nil)
	}()

	go func() {
		off := 0
		for off < len(payload) {
			n, err := syscall.Write(readW, payload[off:])
			if err == syscall.EAGAIN {
				time.Sleep(time.Millisecond)
				continue
			}
			require.NoError(t, err)
			off += n
		}
		syscall.Close(readW)
	}()

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 4096)
	for len(got) < len(payload) {
		n, err := syscall.Read(writeR, buf)
		if err == syscall.EAGAIN {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}

	<-done
	require.NoError(t, copyErr)
	require.Equal(t, payload, got)
	require.Equal(t, uint64(len(payload)), counters.BytesCopied)
}

// TestWriterGoneIsFatal checks that a closed write destination surfaces
// as a WriteError rather than hanging or being silently swallowed.
func TestWriterGoneIsFatal(t *testing.T) {
	readR, readW := nonblockingPipe(t)
	writeR, writeW := nonblockingPipe(t)
	syscall.Close(writeR) // peer gone: writes to writeW will SIGPIPE/EPIPE

	flag := &boolFlag{}
	flag.v.Store(true)

	go func() {
		syscall.Write(readW, []byte("hello"))
		syscall.Close(readW)
	}()

	_, err := Copy(readR, writeW, flag, 50*time.Millisecond, 4096, nil)
	require.Error(t, err)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
}

// TestCancelViaContinueFlag checks that flipping the flag false causes
// Copy to return promptly even with no data flowing, bounded by the
// poll timeout.
func TestCancelViaContinueFlag(t *testing.T) {
	readR, _ := nonblockingPipe(t)
	_, writeW := nonblockingPipe(t)

	flag := &boolFlag{}
	flag.v.Store(true)

	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.v.Store(false)
	}()

	start := time.Now()
	counters, err := Copy(readR, writeW, flag, 50*time.Millisecond, 4096, nil)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, uint64(0), counters.BytesCopied)
}

// TestProgressCallback verifies onProgress fires once per successful
// push and pop, which the session relay relies on for idle timeouts.
func TestProgressCallback(t *testing.T) {
	readR, readW := nonblockingPipe(t)
	writeR, writeW := nonblockingPipe(t)

	flag := &boolFlag{}
	flag.v.Store(true)

	var progressCount atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		Copy(readR, writeW, flag, 50*time.Millisecond, 4096, func() {
			progressCount.Add(1)
		})
	}()

	syscall.Write(readW, []byte("ping"))
	syscall.Close(readW)

	buf := make([]byte, 16)
	for {
		n, err := syscall.Read(writeR, buf)
		if err == syscall.EAGAIN {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		if n > 0 {
			break
		}
	}
	<-done
	require.GreaterOrEqual(t, progressCount.Load(), int64(2))
}
