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

// Package copyio implements the non-blocking copy engine: it drives one
// read/write descriptor pair through a ringbuf.Ring, folding readiness
// waiting into the loop, and returns when end-of-input has drained, a
// fatal I/O error occurs, or the caller cancels it.
//
// The engine requires readFD and writeFD to already be in non-blocking
// mode (SetNonblock) — the caller owns that step, since it also owns
// deciding when the descriptors are handed over (see netrelay.Session).
package copyio

import (
	"time"

	"github.com/cloudwego/netrelay/ringbuf"
)

// Counters is the aggregate result of one
// Copy call.
type Counters struct {
	BytesCopied uint64
	Reads       uint64
	Writes      uint64
}

// ContinueFlag is the cancellation contract: Load() is consulted after
// every readiness wait. Setting it false causes Copy to return at the
// next wait boundary without draining pending data.
type ContinueFlag interface {
	Load() bool
}

// ProgressFunc, when non-nil, is invoked once per successful push or
// pop (i.e. whenever bytes actually move). The session relay uses this
// to implement an idle-since-last-progress timeout without copyio
// itself needing a clock.
type ProgressFunc func()

// Copy moves bytes from readFD to writeFD through a freshly allocated
// ring buffer of bufferCapacity bytes, and returns when any of:
//   - end-of-input has been observed and the ring has drained, or
//   - the writer reports end-of-stream (a zero-length write — fatal), or
//   - a non-retryable I/O error occurs, or
//   - continueFlag is observed false at a readiness-wait boundary.
//
// pollTimeout bounds each individual readiness wait, so continueFlag is
// rechecked at least that often even with no descriptor activity.
func Copy(readFD, writeFD int, continueFlag ContinueFlag, pollTimeout time.Duration, bufferCapacity int, onProgress ProgressFunc) (Counters, error) {
	ring := ringbuf.New(bufferCapacity)
	defer ring.Close()

	var counters Counters
	readEOF := false
	readPossible := true
	writePossible := true

	for {
		hasRoom := ring.Size() < ring.Capacity()
		hasData := ring.Size() > 0

		bytesReadThisIter := 0
		bytesWriteThisIter := 0

		// Step 2: attempt the read side if there's room and reading is
		// believed possible.
		if !readEOF && readPossible && hasRoom {
			seg1, seg2 := ring.PushInquire()
			n, err := vectoredRead(readFD, seg1, seg2)
			switch {
			case err != nil && isWouldBlock(err):
				readPossible = false
			case err != nil:
				return counters, &ReadError{Errno: err, BytesCopied: counters.BytesCopied}
			case n == 0:
				readEOF = true
			default:
				_ = ring.Push(n)
				counters.Reads++
				bytesReadThisIter = n
				if onProgress != nil {
					onProgress()
				}
			}
		}

		// Step 3: attempt the write side if there's data and writing is
		// believed possible.
		if writePossible && hasData {
			seg1, seg2 := ring.PopInquire()
			n, err := vectoredWrite(writeFD, seg1, seg2)
			switch {
			case err != nil && isWouldBlock(err):
				writePossible = false
			case err != nil:
				return counters, &WriteError{Errno: err, BytesCopied: counters.BytesCopied}
			case n == 0:
				return counters, &WriteError{Errno: nil, BytesCopied: counters.BytesCopied}
			default:
				_ = ring.Pop(n)
				counters.BytesCopied += uint64(n)
				counters.Writes++
				bytesWriteThisIter = n
				if onProgress != nil {
					onProgress()
				}
			}
		}

		// Clean termination: input exhausted and the ring has drained.
		if readEOF && ring.Size() == 0 {
			return counters, nil
		}

		roomNow := ring.Size() < ring.Capacity()
		dataNow := ring.Size() > 0

		pollRead := !readEOF && !readPossible && roomNow
		pollWrite := !writePossible && dataNow

		// Tie-break (spec 4.2): an iteration that pushed but couldn't pop
		// must not poll the write side — the next iteration retries the
		// write immediately. Symmetrically for a successful write.
		if bytesReadThisIter > 0 {
			pollWrite = false
			writePossible = true
		}
		if bytesWriteThisIter > 0 {
			pollRead = false
			readPossible = true
		}

		if pollRead || pollWrite {
			readReady, writeReady, err := waitReadiness(readFD, writeFD, pollRead, pollWrite, pollTimeout)
			if err != nil {
				if pollRead {
					return counters, &ReadError{Errno: err, BytesCopied: counters.BytesCopied}
				}
				return counters, &WriteError{Errno: err, BytesCopied: counters.BytesCopied}
			}
			if readReady {
				readPossible = true
			}
			if writeReady {
				writePossible = true
			}
			// continue_flag is consulted after every readiness wait.
			if !continueFlag.Load() {
				return counters, nil
			}
			continue
		}

		// No wait occurred this iteration. If neither side produced any
		// bytes, there is nothing left either side can do right now
		// without a readiness wait — true end-of-both.
		if bytesReadThisIter == 0 && bytesWriteThisIter == 0 {
			return counters, nil
		}
		if !continueFlag.Load() {
			return counters, nil
		}
	}
}
