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

//go:build !linux

package copyio

import (
	"syscall"
	"time"
)

// The segmented, non-blocking readv/writev/select path is implemented
// for Linux. Other platforms get a stub that always reports ENOSYS.

func vectoredRead(fd int, seg1, seg2 []byte) (int, error) {
	return 0, syscall.ENOSYS
}

func vectoredWrite(fd int, seg1, seg2 []byte) (int, error) {
	return 0, syscall.ENOSYS
}

func isWouldBlock(err error) bool {
	return err == syscall.EAGAIN || err == syscall.EWOULDBLOCK
}

func waitReadiness(readFD, writeFD int, waitRead, waitWrite bool, timeout time.Duration) (readReady, writeReady bool, err error) {
	return false, false, syscall.ENOSYS
}

func setNonblock(fd int) error {
	return syscall.ENOSYS
}
