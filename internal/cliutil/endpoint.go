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

// Package cliutil implements the endpoint-specifier grammar
// (-stdio / -listen / -connect) as pflag.Value implementations, so
// --help and error text match the rest of the cobra-based command
// surface.
package cliutil

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/cloudwego/netrelay/netrelay"
	"github.com/spf13/pflag"
)

// EndpointCollector accumulates Endpoints in command-line order as
// -stdio/-listen/-connect flags are parsed.
type EndpointCollector struct {
	Endpoints []netrelay.Endpoint
}

// BindFlags registers -stdio, -listen and -connect on fs, all
// appending to the same collector in the order they're parsed.
func BindFlags(fs *pflag.FlagSet, c *EndpointCollector) {
	stdio := &stdioValue{c: c}
	fs.Var(stdio, "stdio", "standard input/output endpoint")
	fs.Lookup("stdio").NoOptDefVal = "true"

	fs.Var(&listenValue{c: c}, "listen", "listen endpoint: port[,port...] or host:port[,port...]")
	fs.Var(&connectValue{c: c}, "connect", "connect endpoint: host:port")
}

type stdioValue struct{ c *EndpointCollector }

func (v *stdioValue) String() string { return "" }
func (v *stdioValue) Type() string   { return "stdio" }
func (v *stdioValue) Set(string) error {
	v.c.Endpoints = append(v.c.Endpoints, netrelay.Endpoint{Kind: netrelay.EndpointStdio})
	return nil
}

type listenValue struct{ c *EndpointCollector }

func (v *listenValue) String() string { return "" }
func (v *listenValue) Type() string   { return "listen-spec" }
func (v *listenValue) Set(spec string) error {
	host, portsStr := splitHostPorts(spec)
	ports, err := parsePortList(portsStr)
	if err != nil {
		return fmt.Errorf("-listen %q: %w", spec, err)
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			return fmt.Errorf("-listen %q: host must be numeric", spec)
		}
	}
	v.c.Endpoints = append(v.c.Endpoints, netrelay.Endpoint{
		Kind:  netrelay.EndpointListen,
		Host:  host,
		Ports: ports,
	})
	return nil
}

type connectValue struct{ c *EndpointCollector }

func (v *connectValue) String() string { return "" }
func (v *connectValue) Type() string   { return "connect-spec" }
func (v *connectValue) Set(spec string) error {
	host, portsStr := splitHostPorts(spec)
	if host == "" {
		return fmt.Errorf("-connect %q: expected host:port", spec)
	}
	ports, err := parsePortList(portsStr)
	if err != nil || len(ports) != 1 {
		return fmt.Errorf("-connect %q: expected exactly one port", spec)
	}
	if _, err := net.LookupHost(host); err != nil {
		return fmt.Errorf("-connect %q: resolve %s: %w", spec, host, err)
	}
	v.c.Endpoints = append(v.c.Endpoints, netrelay.Endpoint{
		Kind: netrelay.EndpointDial,
		Host: host,
		Port: ports[0],
	})
	return nil
}

// splitHostPorts splits "host:port[,port...]" into (host, ports) or,
// when there's no colon, ("", "port[,port...]").
func splitHostPorts(spec string) (host, ports string) {
	idx := strings.LastIndex(spec, ":")
	if idx < 0 {
		return "", spec
	}
	return spec[:idx], spec[idx+1:]
}

func parsePortList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ports := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		if n < 1 || n > 65535 {
			return nil, fmt.Errorf("port %d out of range", n)
		}
		ports = append(ports, n)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("at least one port required")
	}
	return ports, nil
}
