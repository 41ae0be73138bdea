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
	"time"

	"golang.org/x/sys/unix"
)

const fdSetBits = 64

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/fdSetBits] |= 1 << (uint(fd) % fdSetBits)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/fdSetBits]&(1<<(uint(fd)%fdSetBits)) != 0
}

// vectoredRead issues a single readv(2) over the non-empty segments of
// seg1/seg2, retrying on EINTR.
func vectoredRead(fd int, seg1, seg2 []byte) (int, error) {
	iovs := buildIovecs(seg1, seg2)
	if len(iovs) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Readv(fd, iovs)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// vectoredWrite issues a single writev(2) over the non-empty segments
// of seg1/seg2, retrying on EINTR.
func vectoredWrite(fd int, seg1, seg2 []byte) (int, error) {
	iovs := buildIovecs(seg1, seg2)
	if len(iovs) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Writev(fd, iovs)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func buildIovecs(seg1, seg2 []byte) []unix.Iovec {
	iovs := make([]unix.Iovec, 0, 2)
	if len(seg1) > 0 {
		var iov unix.Iovec
		iov.Base = &seg1[0]
		iov.SetLen(len(seg1))
		iovs = append(iovs, iov)
	}
	if len(seg2) > 0 {
		var iov unix.Iovec
		iov.Base = &seg2[0]
		iov.SetLen(len(seg2))
		iovs = append(iovs, iov)
	}
	return iovs
}

// isWouldBlock reports whether err is EAGAIN/EWOULDBLOCK.
func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// waitReadiness blocks (up to timeout) until readFD is readable (if
// waitRead) and/or writeFD is writable (if waitWrite), or until
// timeout elapses. It reports which sides became ready.
func waitReadiness(readFD, writeFD int, waitRead, waitWrite bool, timeout time.Duration) (readReady, writeReady bool, err error) {
	var rset, wset unix.FdSet
	maxFD := 0
	if waitRead {
		fdSet(&rset, readFD)
		if readFD > maxFD {
			maxFD = readFD
		}
	}
	if waitWrite {
		fdSet(&wset, writeFD)
		if writeFD > maxFD {
			maxFD = writeFD
		}
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())

	var rp, wp *unix.FdSet
	if waitRead {
		rp = &rset
	}
	if waitWrite {
		wp = &wset
	}

	for {
		_, err = unix.Select(maxFD+1, rp, wp, nil, &tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, false, err
		}
		break
	}

	if waitRead && fdIsSet(&rset, readFD) {
		readReady = true
	}
	if waitWrite && fdIsSet(&wset, writeFD) {
		writeReady = true
	}
	return readReady, writeReady, nil
}

// setNonblock puts fd into non-blocking mode.
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
