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

// Package config merges the command-line flags with an optional YAML
// override file into a netrelay.Config: flags win over the file, the
// file wins over built-in defaults.
package config

import (
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/cloudwego/netrelay/netrelay"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// byteSizeValue adapts datasize.ByteSize (which already knows how to
// unmarshal strings like "4KB"/"1MiB") to pflag.Value.
type byteSizeValue struct{ v *datasize.ByteSize }

func (b byteSizeValue) String() string { return b.v.String() }
func (b byteSizeValue) Type() string   { return "size" }
func (b byteSizeValue) Set(s string) error {
	return b.v.UnmarshalText([]byte(s))
}

// Options holds the raw flag-bound values plus the FlagSet they came
// from, so Load can tell an explicitly-passed flag from its default.
type Options struct {
	fs *pflag.FlagSet

	MaxClients int
	MaxCIP     int
	MaxIOTime  int
	BufferSize datasize.ByteSize
	ConfigFile string
}

// FlagNames are the long-form flag names BindFlags registers, for
// passing to cliutil.NormalizeArgs.
var FlagNames = []string{"max_clients", "max_cip", "max_iotime", "buffer_size", "config"}

// BindFlags registers the concurrent-relay flags (-max_clients,
// -max_cip, -max_iotime) plus -buffer_size and -config.
func BindFlags(fs *pflag.FlagSet) *Options {
	o := &Options{fs: fs}
	fs.IntVar(&o.MaxClients, "max_clients", 32, "cap on concurrent sessions")
	fs.IntVar(&o.MaxCIP, "max_cip", 10, "cap on concurrent in-progress dials")
	fs.IntVar(&o.MaxIOTime, "max_iotime", 0, "per-session idle timeout in seconds (0 = unbounded)")
	o.BufferSize = datasize.ByteSize(64 * 1024)
	fs.Var(byteSizeValue{&o.BufferSize}, "buffer_size", "ring buffer capacity, e.g. 64KB, 1MiB")
	fs.StringVar(&o.ConfigFile, "config", "", "optional YAML config file overlaying these flags")
	return o
}

// fileOverlay is the optional YAML override file's shape.
type fileOverlay struct {
	MaxClients *int    `yaml:"max_clients"`
	MaxCIP     *int    `yaml:"max_cip"`
	MaxIOTime  *int    `yaml:"max_iotime"`
	BufferSize *string `yaml:"buffer_size"`
}

// Load builds a netrelay.Config from defaults, an optional YAML file,
// and the parsed flags in o, in increasing order of precedence.
func Load(o *Options) (netrelay.Config, error) {
	cfg := netrelay.DefaultConfig()

	if o.ConfigFile != "" {
		data, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return cfg, err
		}
		var overlay fileOverlay
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return cfg, err
		}
		if overlay.MaxClients != nil {
			cfg.MaxSessions = *overlay.MaxClients
		}
		if overlay.MaxCIP != nil {
			cfg.MaxConnectsInProgress = *overlay.MaxCIP
		}
		if overlay.MaxIOTime != nil {
			cfg.PerSessionIdleTimeout = time.Duration(*overlay.MaxIOTime) * time.Second
		}
		if overlay.BufferSize != nil {
			var sz datasize.ByteSize
			if err := sz.UnmarshalText([]byte(*overlay.BufferSize)); err != nil {
				return cfg, err
			}
			cfg.BufferCapacity = int(sz.Bytes())
		}
	}

	if o.fs.Changed("max_clients") {
		cfg.MaxSessions = o.MaxClients
	}
	if o.fs.Changed("max_cip") {
		cfg.MaxConnectsInProgress = o.MaxCIP
	}
	if o.fs.Changed("max_iotime") {
		cfg.PerSessionIdleTimeout = time.Duration(o.MaxIOTime) * time.Second
	}
	if o.fs.Changed("buffer_size") {
		cfg.BufferCapacity = int(o.BufferSize.Bytes())
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
