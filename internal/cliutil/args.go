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

package cliutil

import "strings"

// NormalizeArgs rewrites single-dash long-form flags (-stdio, -listen,
// -max_clients=32, ...) into the double-dash form pflag expects
// (--stdio, --listen, --max_clients=32, ...). Anything not in
// longFlags is passed through untouched, so single-character shorthand
// runs like -h keep working exactly as pflag's GNU-style parser
// already handles them.
//
// pflag treats "-xyz" as the shorthand run "-x -y -z", not as the long
// flag "xyz"; without this translation the traditional single-dash
// long-option grammar (tcpcat -stdio -connect host:port) is
// unreachable through cobra's flag set. Apply it to os.Args[1:] before
// handing them to a cobra command's Execute.
func NormalizeArgs(args []string, longFlags ...string) []string {
	known := make(map[string]bool, len(longFlags))
	for _, f := range longFlags {
		known[f] = true
	}

	out := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, "-") && !strings.HasPrefix(a, "--") {
			name := a[1:]
			if eq := strings.IndexByte(name, '='); eq >= 0 {
				name = name[:eq]
			}
			if known[name] {
				out[i] = "-" + a
				continue
			}
		}
		out[i] = a
	}
	return out
}

// EndpointFlagNames are the long-form flag names BindFlags registers,
// for passing to NormalizeArgs.
var EndpointFlagNames = []string{"stdio", "listen", "connect"}
