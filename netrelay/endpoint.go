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

// Package netrelay implements the session supervisor: it accepts or
// dials the two endpoints of a relay, enforces the session and
// connect-in-progress caps, and runs a full-duplex copyio.Copy pair per
// session.
package netrelay

import "fmt"

// EndpointKind tags which variant an Endpoint holds.
type EndpointKind int

const (
	// EndpointStdio binds fd 0 for reads and fd 1 for writes.
	EndpointStdio EndpointKind = iota
	// EndpointDial connects out to Host:Port.
	EndpointDial
	// EndpointListen binds Ports on Host (empty Host means all
	// interfaces).
	EndpointListen
)

func (k EndpointKind) String() string {
	switch k {
	case EndpointStdio:
		return "stdio"
	case EndpointDial:
		return "dial"
	case EndpointListen:
		return "listen"
	default:
		return "unknown"
	}
}

// Endpoint is a tagged variant built by
// the CLI layer (internal/cliutil) and consumed once by a Supervisor.
type Endpoint struct {
	Kind  EndpointKind
	Host  string
	Port  int   // EndpointDial only
	Ports []int // EndpointListen only
}

func (e Endpoint) String() string {
	switch e.Kind {
	case EndpointStdio:
		return "stdio"
	case EndpointDial:
		return fmt.Sprintf("connect %s:%d", e.Host, e.Port)
	case EndpointListen:
		return fmt.Sprintf("listen %s:%v", e.Host, e.Ports)
	default:
		return "invalid"
	}
}

// IsListen reports whether e is an EndpointListen.
func (e Endpoint) IsListen() bool { return e.Kind == EndpointListen }
