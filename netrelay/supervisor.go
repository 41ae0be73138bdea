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
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cloudwego/netrelay/concurrency/gopool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// SessionInfo is an operator-visible snapshot of one live session, for
// introspection only — it never gates admission (the session semaphore
// does that).
type SessionInfo struct {
	ID        uint64
	EndpointA string
	EndpointB string
	StartedAt time.Time
}

// sessionSlot is one fixed record in the supervisor's session-tracking
// table: a reusable record reporting live/finished much like tcppipe's
// ThreadRecord.running, except reclaimed round-robin instead of swept
// by an explicit cleanup pass.
type sessionSlot struct {
	info SessionInfo
	live bool
}

// Supervisor is the outer accept/dial loop, the two counting
// semaphores, and the live-session bookkeeping table.
type Supervisor struct {
	config Config
	epA    Endpoint
	epB    Endpoint
	logger *zap.Logger

	listenerA *Listener
	listenerB *Listener

	sessionSem *semaphore.Weighted
	connectSem *semaphore.Weighted

	// mu guards slots and cursor: claimSlot/releaseSlot/Sessions can
	// all be called from concurrent session workers.
	mu     sync.Mutex
	slots  []*sessionSlot
	cursor int
	serial atomic.Uint64

	// wg tracks detached session workers so Close can drain them
	// (e.g. in tests); it is not required for correctness since
	// the session semaphore is the real admission gate.
	wg sync.WaitGroup
}

// NewSupervisor builds listener sets for any Listen endpoint, installs
// the SIGPIPE-ignore disposition, and returns a ready-to-run
// Supervisor. cfg is validated in place.
func NewSupervisor(cfg Config, epA, epB Endpoint, logger *zap.Logger) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	signal.Ignore(syscall.SIGPIPE)

	sup := &Supervisor{
		config:     cfg,
		epA:        epA,
		epB:        epB,
		logger:     logger,
		sessionSem: semaphore.NewWeighted(int64(cfg.MaxSessions)),
		connectSem: semaphore.NewWeighted(int64(cfg.MaxConnectsInProgress)),
		slots:      make([]*sessionSlot, cfg.MaxSessions),
	}
	for i := range sup.slots {
		sup.slots[i] = &sessionSlot{}
	}

	var err error
	if epA.IsListen() {
		sup.listenerA, err = NewListener(epA.Host, epA.Ports, cfg.ListenBacklog, logger)
		if err != nil {
			return nil, err
		}
	}
	if epB.IsListen() {
		sup.listenerB, err = NewListener(epB.Host, epB.Ports, cfg.ListenBacklog, logger)
		if err != nil {
			if sup.listenerA != nil {
				_ = sup.listenerA.Close()
			}
			return nil, err
		}
	}
	return sup, nil
}

// Run executes a do-while accept loop: the body always runs at least
// once (this is how a "cat" one-shot relay with no Listen endpoint
// gets its single session), and repeats only while at least one
// endpoint is a listener.
func (sup *Supervisor) Run(ctx context.Context) error {
	repeat := sup.epA.IsListen() || sup.epB.IsListen()

	for {
		if err := sup.sessionSem.Acquire(ctx, 1); err != nil {
			return err
		}
		sessionRelease := newSemaphoreReleaser(sup.sessionSem, 1)

		sideA, sideB, err := sup.acceptBoth(ctx)
		if err != nil {
			sessionRelease.Release()
			sup.logger.Error("accept failed", zap.Error(err))
			return err
		}

		worker := func() {
			defer sessionRelease.Release()
			sup.runSession(ctx, sideA, sideB)
		}

		if repeat {
			sup.wg.Add(1)
			gopool.CtxGo(ctx, func() {
				defer sup.wg.Done()
				worker()
			})
		} else {
			worker()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// acceptSide is the result of the accept phase for one endpoint: a
// live accepted connection (for a Listen endpoint) or the zero value
// (for Dial/Stdio, dialed later inside the session worker).
type acceptSide struct {
	port int
	conn net.Conn
}

func (sup *Supervisor) acceptBoth(ctx context.Context) (acceptSide, acceptSide, error) {
	if sup.listenerA != nil && sup.listenerB != nil {
		var sideA, sideB acceptSide
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			sideA.port, sideA.conn, err = sup.listenerA.GetClient()
			return err
		})
		g.Go(func() (err error) {
			sideB.port, sideB.conn, err = sup.listenerB.GetClient()
			return err
		})
		if err := g.Wait(); err != nil {
			if sideA.conn != nil {
				_ = sideA.conn.Close()
			}
			if sideB.conn != nil {
				_ = sideB.conn.Close()
			}
			return acceptSide{}, acceptSide{}, err
		}
		return sideA, sideB, nil
	}

	var sideA, sideB acceptSide
	var err error
	if sup.listenerA != nil {
		sideA.port, sideA.conn, err = sup.listenerA.GetClient()
		if err != nil {
			return acceptSide{}, acceptSide{}, err
		}
	}
	if sup.listenerB != nil {
		sideB.port, sideB.conn, err = sup.listenerB.GetClient()
		if err != nil {
			if sideA.conn != nil {
				_ = sideA.conn.Close()
			}
			return acceptSide{}, acceptSide{}, err
		}
	}
	return sideA, sideB, nil
}

// runSession materializes the remaining (Dial/Stdio) side(s), takes
// ownership of both sockets, and runs the full-duplex relay to
// completion. It never returns an error: dial failures and I/O
// failures are logged and the session is simply abandoned — a failed
// dial does not affect other sessions.
func (sup *Supervisor) runSession(ctx context.Context, sideA, sideB acceptSide) {
	handleA, closerA, err := sup.materialize(ctx, sup.epA, sideA)
	if err != nil {
		sup.logger.Warn("session abandoned: side A failed", zap.Error(err))
		if sideB.conn != nil {
			_ = sideB.conn.Close()
		}
		return
	}
	handleB, closerB, err := sup.materialize(ctx, sup.epB, sideB)
	if err != nil {
		sup.logger.Warn("session abandoned: side B failed", zap.Error(err))
		closerA.Close()
		return
	}

	// Ownership moves to the session: the scoped guards are disarmed and
	// the session gets fresh closers that relay runs when it finishes.
	closerA.Disarm()
	closerB.Disarm()
	handleA.closer = newSocketCloser(handleA.conn)
	handleB.closer = newSocketCloser(handleB.conn)

	id := sup.serial.Add(1)
	slot := sup.claimSlot(id)
	defer sup.releaseSlot(slot)

	session := &Session{ID: id, A: handleA, B: handleB, config: sup.config, logger: sup.logger}
	start := time.Now()
	result := session.relay()
	sup.logger.Info("session complete",
		zap.Uint64("id", id),
		zap.Duration("duration", time.Since(start)),
		zap.Uint64("bytes_a_to_b", result.AtoB.BytesCopied),
		zap.Uint64("bytes_b_to_a", result.BtoA.BytesCopied),
	)
	if result.ErrAtoB != nil {
		sup.logger.Info("direction a->b ended", zap.Error(result.ErrAtoB))
	}
	if result.ErrBtoA != nil {
		sup.logger.Info("direction b->a ended", zap.Error(result.ErrBtoA))
	}
}

// materialize turns an (Endpoint, acceptSide) pair into a live
// socketHandle: stdio binds directly to fd 0/1, an already-accepted
// Listen side is wrapped as-is, and a Dial endpoint is dialed under the
// connect-in-progress semaphore with the configured connect timeout.
func (sup *Supervisor) materialize(ctx context.Context, ep Endpoint, side acceptSide) (socketHandle, *socketCloser, error) {
	switch ep.Kind {
	case EndpointStdio:
		return stdioHandle(), nil, nil
	case EndpointListen:
		handle, err := newConnHandle(side.conn)
		if err != nil {
			side.conn.Close()
			return socketHandle{}, nil, err
		}
		return handle, handle.closer, nil
	case EndpointDial:
		if err := sup.connectSem.Acquire(ctx, 1); err != nil {
			return socketHandle{}, nil, err
		}
		defer sup.connectSem.Release(1)

		dialCtx := ctx
		var cancel context.CancelFunc
		if sup.config.ConnectTimeout > 0 {
			dialCtx, cancel = context.WithTimeout(ctx, sup.config.ConnectTimeout)
			defer cancel()
		}
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", ep.Host, ep.Port))
		if err != nil {
			return socketHandle{}, nil, fmt.Errorf("dial %s:%d: %w", ep.Host, ep.Port, err)
		}
		handle, err := newConnHandle(conn)
		if err != nil {
			conn.Close()
			return socketHandle{}, nil, err
		}
		return handle, handle.closer, nil
	default:
		return socketHandle{}, nil, fmt.Errorf("unknown endpoint kind %v", ep.Kind)
	}
}

func (sup *Supervisor) claimSlot(id uint64) *sessionSlot {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	// Skip records still held by live sessions; the session semaphore
	// guarantees at least one free record.
	for i := 0; i < len(sup.slots) && sup.slots[sup.cursor].live; i++ {
		sup.cursor = (sup.cursor + 1) % len(sup.slots)
	}
	slot := sup.slots[sup.cursor]
	slot.info = SessionInfo{ID: id, EndpointA: sup.epA.String(), EndpointB: sup.epB.String(), StartedAt: time.Now()}
	slot.live = true
	sup.cursor = (sup.cursor + 1) % len(sup.slots)
	return slot
}

func (sup *Supervisor) releaseSlot(slot *sessionSlot) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	slot.live = false
}

// Sessions returns a snapshot of currently live sessions, for
// operator introspection; it never gates admission.
func (sup *Supervisor) Sessions() []SessionInfo {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	var out []SessionInfo
	for _, slot := range sup.slots {
		if slot.live {
			out = append(out, slot.info)
		}
	}
	return out
}

// Close tears down any listener sets and waits for detached session
// workers to finish.
func (sup *Supervisor) Close() error {
	if sup.listenerA != nil {
		_ = sup.listenerA.Close()
	}
	if sup.listenerB != nil {
		_ = sup.listenerB.Close()
	}
	sup.wg.Wait()
	return nil
}
