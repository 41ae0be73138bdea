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
	"fmt"
	"time"
)

// Compile-time ceilings on the CLI-configurable caps: requests above
// these are rejected rather than silently clamped.
const (
	MaxSessionsCeiling = 4096
	MaxConnectsCeiling = 1024
)

// Config is immutable once built and shared
// by every session the Supervisor spawns.
type Config struct {
	MaxSessions           int
	MaxConnectsInProgress int
	PerSessionIdleTimeout time.Duration
	ConnectTimeout        time.Duration
	BufferCapacity        int
	ListenBacklog         int
}

// DefaultConfig mirrors the command-line defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:           32,
		MaxConnectsInProgress: 10,
		PerSessionIdleTimeout: 0, // 0 means effectively unbounded
		ConnectTimeout:        0, // defaults to PerSessionIdleTimeout when zero
		BufferCapacity:        64 * 1024,
		ListenBacklog:         128,
	}
}

// Validate checks the configured caps against the compile-time
// ceilings and normalizes ConnectTimeout.
func (c *Config) Validate() error {
	if c.MaxSessions <= 0 || c.MaxSessions > MaxSessionsCeiling {
		return fmt.Errorf("max_clients must be in (0, %d]", MaxSessionsCeiling)
	}
	if c.MaxConnectsInProgress <= 0 || c.MaxConnectsInProgress > MaxConnectsCeiling {
		return fmt.Errorf("max_cip must be in (0, %d]", MaxConnectsCeiling)
	}
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = c.PerSessionIdleTimeout
	}
	return nil
}
