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

// Command tcppipe is the concurrent relay: it repeatedly accepts (and,
// for Dial endpoints, redials) session pairs, relaying each
// concurrently under a session cap and a connect-in-progress cap.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/cloudwego/netrelay/internal/cliutil"
	"github.com/cloudwego/netrelay/internal/config"
	"github.com/cloudwego/netrelay/internal/rlog"
	"github.com/cloudwego/netrelay/netrelay"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := buildCommand()
	cmd.SetArgs(cliutil.NormalizeArgs(os.Args[1:], longFlagNames()...))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return 0
}

// longFlagNames lists every flag tcppipe registers under its
// traditional single-dash long-option spelling (-stdio, -max_clients,
// -log_level, ...), so run can translate them into the double-dash
// form pflag's GNU-style parser requires before Execute sees them.
func longFlagNames() []string {
	names := append([]string(nil), cliutil.EndpointFlagNames...)
	names = append(names, config.FlagNames...)
	return append(names, "log_level")
}

func buildCommand() *cobra.Command {
	var collector cliutil.EndpointCollector
	var opts *config.Options
	var logLevel string

	cmd := &cobra.Command{
		Use:           "tcppipe",
		Short:         "Relay bytes concurrently between two endpoints (stdio, dial, or listen).",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(collector.Endpoints) != 2 {
				return fmt.Errorf("tcppipe requires exactly two endpoint specifiers (-stdio/-listen/-connect), got %d", len(collector.Endpoints))
			}
			logger, err := rlog.New(logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.Load(opts)
			if err != nil {
				return err
			}

			sup, err := netrelay.NewSupervisor(cfg, collector.Endpoints[0], collector.Endpoints[1], logger)
			if err != nil {
				return err
			}
			defer sup.Close()
			return sup.Run(context.Background())
		},
	}

	cliutil.BindFlags(cmd.Flags(), &collector)
	opts = config.BindFlags(cmd.Flags())
	cmd.Flags().StringVar(&logLevel, "log_level", "info", "log level: debug, info, warn, error")
	return cmd
}

// exitCodeFor maps configuration errors to exit 1, and an I/O subsystem
// failure carrying an errno to that errno.
func exitCodeFor(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 1
}
