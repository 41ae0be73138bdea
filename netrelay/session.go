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

package netrelay

import (
	"context"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cloudwego/netrelay/concurrency/gopool"
	"github.com/cloudwego/netrelay/copyio"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// socketHandle is one side of a session. ReadFD/WriteFD are equal for
// a full-duplex socket, but differ for stdio: fd 0 for reads, fd 1 for
// writes.
type socketHandle struct {
	conn    net.Conn
	ReadFD  int
	WriteFD int
	closer  *socketCloser
}

func stdioHandle() socketHandle { return socketHandle{ReadFD: 0, WriteFD: 1} }

// newConnHandle wraps conn, extracts its raw fd, and puts it into
// non-blocking mode. The returned closer guards the socket until the
// caller disarms it.
func newConnHandle(conn net.Conn) (socketHandle, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return socketHandle{}, &NetConfigError{Msg: "connection does not expose a raw fd"}
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return socketHandle{}, err
	}
	var fd int
	if err := raw.Control(func(p uintptr) { fd = int(p) }); err != nil {
		return socketHandle{}, err
	}
	if err := unixSetNonblock(fd); err != nil {
		return socketHandle{}, err
	}
	return socketHandle{conn: conn, ReadFD: fd, WriteFD: fd, closer: newSocketCloser(conn)}, nil
}

// Session holds the two live sockets of one relay; relay runs its two
// copy engines with a shared cancellation flag and returns
// per-direction statistics.
type Session struct {
	ID     uint64
	A, B   socketHandle
	config Config
	logger *zap.Logger
}

// SessionResult is what a session relay reports after both directions
// have stopped.
type SessionResult struct {
	AtoB, BtoA copyio.Counters
	ErrAtoB    error
	ErrBtoA    error
}

type cancelFlag struct{ v atomic.Bool }

func (f *cancelFlag) Load() bool    { return f.v.Load() }
func (f *cancelFlag) Set(val bool)  { f.v.Store(val) }

// relay runs the full-duplex copy: two copyio.Copy calls sharing a
// cancellation flag, joined through a capacity-2 completion semaphore
// pre-drained to zero. The session ends as soon as either direction
// stops: the other direction is cancelled. The idle timeout (PerSessionIdleTimeout) is
// tracked as idle-since-last-progress via a small watchdog fed by each
// engine's onProgress callback.
func (s *Session) relay() SessionResult {
	flag := &cancelFlag{}
	flag.Set(true)

	completion := semaphore.NewWeighted(2)
	_ = completion.Acquire(context.Background(), 2) // pre-acquire both permits

	var lastProgress atomic.Int64
	lastProgress.Store(time.Now().UnixNano())
	onProgress := func() { lastProgress.Store(time.Now().UnixNano()) }

	var result SessionResult
	pollTimeout := s.config.PerSessionIdleTimeout
	if pollTimeout <= 0 || pollTimeout > time.Second {
		pollTimeout = time.Second
	}

	gopool.Go(func() {
		defer completion.Release(1)
		result.AtoB, result.ErrAtoB = copyio.Copy(s.A.ReadFD, s.B.WriteFD, flag, pollTimeout, s.config.BufferCapacity, onProgress)
	})
	gopool.Go(func() {
		defer completion.Release(1)
		result.BtoA, result.ErrBtoA = copyio.Copy(s.B.ReadFD, s.A.WriteFD, flag, pollTimeout, s.config.BufferCapacity, onProgress)
	})

	waitCtx, cancelWait := context.WithCancel(context.Background())
	defer cancelWait()

	stopWatchdog := make(chan struct{})
	watchdogDone := make(chan struct{})
	if s.config.PerSessionIdleTimeout > 0 {
		gopool.Go(func() {
			defer close(watchdogDone)
			ticker := time.NewTicker(pollTimeout)
			defer ticker.Stop()
			for {
				select {
				case <-stopWatchdog:
					return
				case <-ticker.C:
					idleFor := time.Since(time.Unix(0, lastProgress.Load()))
					if idleFor >= s.config.PerSessionIdleTimeout {
						flag.Set(false)
						cancelWait()
						return
					}
				}
			}
		})
	} else {
		close(watchdogDone)
	}

	// Wake as soon as either direction finishes (or the idle watchdog
	// fires), then cancel the other direction.
	remaining := int64(2)
	if err := completion.Acquire(waitCtx, 1); err == nil {
		remaining = 1
	}
	flag.Set(false)
	close(stopWatchdog)
	<-watchdogDone

	// Join: block until every engine that has not yet released its
	// permit has returned. Each remaining engine observes the
	// cancellation flag at its next readiness-wait boundary.
	_ = completion.Acquire(context.Background(), remaining)

	s.A.closer.Close()
	s.B.closer.Close()
	return result
}
