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

package main

import (
	"testing"

	"github.com/cloudwego/netrelay/internal/cliutil"
	"github.com/cloudwego/netrelay/netrelay"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// TestSingleDashLongFlagsParse exercises the exact path run() takes:
// os.Args -> NormalizeArgs -> pflag.FlagSet.Parse. pflag reads "-xyz"
// as the shorthand run "-x -y -z", so without the translation the
// traditional single-dash long-option grammar this command's usage
// text advertises (tcpcat -stdio -connect host:port) would never
// reach a registered flag.
func TestSingleDashLongFlagsParse(t *testing.T) {
	var collector cliutil.EndpointCollector
	fs := pflag.NewFlagSet("tcpcat", pflag.ContinueOnError)
	cliutil.BindFlags(fs, &collector)

	args := cliutil.NormalizeArgs(
		[]string{"-stdio", "-connect", "127.0.0.1:9001"},
		cliutil.EndpointFlagNames...,
	)
	require.NoError(t, fs.Parse(args))

	require.Len(t, collector.Endpoints, 2)
	require.Equal(t, netrelay.EndpointStdio, collector.Endpoints[0].Kind)
	require.Equal(t, netrelay.EndpointDial, collector.Endpoints[1].Kind)
	require.Equal(t, "127.0.0.1", collector.Endpoints[1].Host)
	require.Equal(t, 9001, collector.Endpoints[1].Port)
}

// TestLongFlagNamesCoversRegisteredFlags guards against longFlagNames
// silently drifting from what buildCommand actually registers — a
// flag missing from this list would still fail to parse under its
// single-dash spelling even with the translation fix in place.
func TestLongFlagNamesCoversRegisteredFlags(t *testing.T) {
	cmd := buildCommand()
	known := make(map[string]bool)
	for _, n := range longFlagNames() {
		known[n] = true
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		require.Truef(t, known[f.Name], "flag %q registered but missing from longFlagNames", f.Name)
	})
}
