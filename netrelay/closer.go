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
	"syscall"

	"golang.org/x/sync/semaphore"
)

// socketCloser half-duplex shuts down and closes a net.Conn on scope
// exit unless Disarm was called first. The zero value is inert.
type socketCloser struct {
	conn     net.Conn
	disarmed bool
}

func newSocketCloser(conn net.Conn) *socketCloser {
	return &socketCloser{conn: conn}
}

// Disarm transfers ownership of the socket away from this guard. It
// must be called at most once; calling it twice is an invariant
// violation ("double-arming"), so it panics.
func (c *socketCloser) Disarm() {
	if c == nil {
		return
	}
	if c.disarmed {
		panic("netrelay: socketCloser disarmed twice")
	}
	c.disarmed = true
}

// Close runs the guarded release: graceful shutdown then close, unless
// already disarmed or nil.
func (c *socketCloser) Close() {
	if c == nil || c.disarmed || c.conn == nil {
		return
	}
	c.disarmed = true
	if tc, ok := c.conn.(interface{ CloseWrite() error }); ok {
		_ = tc.CloseWrite()
	} else if sc, ok := c.conn.(syscall.Conn); ok {
		raw, err := sc.SyscallConn()
		if err == nil {
			_ = raw.Control(func(fd uintptr) {
				_ = syscall.Shutdown(int(fd), syscall.SHUT_RDWR)
			})
		}
	}
	_ = c.conn.Close()
}

// semaphoreReleaser releases one permit from a weighted semaphore on
// scope exit unless Disarm was called. Like socketCloser, arming twice
// is an invariant violation.
type semaphoreReleaser struct {
	sem      *semaphore.Weighted
	n        int64
	disarmed bool
}

func newSemaphoreReleaser(sem *semaphore.Weighted, n int64) *semaphoreReleaser {
	return &semaphoreReleaser{sem: sem, n: n}
}

func (r *semaphoreReleaser) Disarm() {
	if r.disarmed {
		panic("netrelay: semaphoreReleaser disarmed twice")
	}
	r.disarmed = true
}

func (r *semaphoreReleaser) Release() {
	if r == nil || r.disarmed {
		return
	}
	r.disarmed = true
	r.sem.Release(r.n)
}

// acquireSem blocks until n permits are free on sem, or ctx is done.
func acquireSem(ctx context.Context, sem *semaphore.Weighted, n int64) error {
	return sem.Acquire(ctx, n)
}
