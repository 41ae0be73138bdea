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
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cloudwego/netrelay/concurrency/gopool"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// NetConfigError is raised by NewListener when binding a port fails or
// the bind address cannot be parsed.
type NetConfigError struct {
	Msg string
}

func (e *NetConfigError) Error() string { return "netrelay: " + e.Msg }

// pendingConn is one accepted-but-not-yet-delivered connection.
type pendingConn struct {
	port int
	conn net.Conn
}

// Listener binds one non-blocking listening socket per port on a
// single address, and yields (port, conn) pairs one at a time through
// GetClient. Multiple ports becoming ready in a single wake-up are all
// drained into a pending queue so later GetClient calls don't re-poll.
type Listener struct {
	host      string
	ports     []int
	listeners []net.Listener
	logger    *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []pendingConn
	head    int
	count   int
	closed  bool
	fatal   error
}

// NewListener binds a non-blocking listening socket for every port in
// ports on host (host == "" binds all interfaces), with SO_REUSEADDR
// and SO_REUSEPORT set, and the given accept backlog.
func NewListener(host string, ports []int, backlog int, logger *zap.Logger) (*Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(ports) == 0 {
		return nil, &NetConfigError{Msg: "listen requires at least one port"}
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = setReusePort(int(fd))
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
		Backlog: backlog,
	}

	l := &Listener{
		host:    host,
		ports:   append([]int(nil), ports...),
		pending: make([]pendingConn, len(ports)),
	}
	l.cond = sync.NewCond(&l.mu)

	for _, port := range ports {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := lc.Listen(context.Background(), "tcp", addr)
		if err != nil {
			for _, prior := range l.listeners {
				_ = prior.Close()
			}
			return nil, &NetConfigError{Msg: fmt.Sprintf("bind %s: %v", addr, err)}
		}
		l.listeners = append(l.listeners, ln)
	}
	l.logger = logger

	for i, ln := range l.listeners {
		port, listener := l.ports[i], ln
		gopool.Go(func() { l.acceptLoop(port, listener) })
	}
	return l, nil
}

func setReusePort(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

func (l *Listener) acceptLoop(port int, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			if !l.closed {
				l.fatal = fmt.Errorf("accept on port %d: %w", port, err)
				l.cond.Broadcast()
			}
			l.mu.Unlock()
			return
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(30 * time.Second)
		}
		l.enqueue(pendingConn{port: port, conn: conn})
	}
}

// enqueue blocks while the pending queue is full — a slow consumer
// applies backpressure directly to the accept loops instead of
// unbounded buffering.
func (l *Listener) enqueue(pc pendingConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.count == len(l.pending) && !l.closed {
		l.cond.Wait()
	}
	if l.closed {
		_ = pc.conn.Close()
		return
	}
	l.pending[(l.head+l.count)%len(l.pending)] = pc
	l.count++
	l.cond.Broadcast()
}

// GetClient blocks until at least one accepted connection is
// available and returns it. Additional ready connections discovered in
// the same wake-up were already queued by the per-port accept loops,
// so a burst of simultaneous arrivals drains one per call without
// re-polling.
func (l *Listener) GetClient() (port int, conn net.Conn, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.count == 0 {
		if l.fatal != nil {
			return 0, nil, l.fatal
		}
		if l.closed {
			return 0, nil, fmt.Errorf("netrelay: listener closed")
		}
		l.cond.Wait()
	}
	pc := l.pending[l.head]
	l.head = (l.head + 1) % len(l.pending)
	l.count--
	l.cond.Broadcast()
	return pc.port, pc.conn, nil
}

// Close stops accepting and unblocks any GetClient waiters.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()

	var firstErr error
	for _, ln := range l.listeners {
		if err := ln.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
