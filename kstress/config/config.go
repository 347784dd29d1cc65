// Copyright 2023 The kernsync Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for kstress. Each setting is a flag and, optionally, a key in a TOML
// configuration file.
package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mohae/deepcopy"
	"kernsync.dev/kernsync/pkg/log"
)

// Config holds configuration that is shared by every kstress command.
//
// Follow these steps to add a new setting:
//  1. Create a new field with `flag` and `toml` tags.
//  2. Register the flag in RegisterFlags.
//  3. Add validation, if needed, to validate.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log-format"`

	// AlsoLogToStderr sends logs to stderr too.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`

	// Threads is the number of worker threads per workload.
	Threads int `flag:"threads" toml:"threads"`

	// Iterations is the number of operations per worker.
	Iterations int `flag:"iterations" toml:"iterations"`

	// Phases is the number of barrier phases.
	Phases int `flag:"phases" toml:"phases"`

	// Duration is how long time-based workloads run.
	Duration time.Duration `flag:"duration" toml:"duration"`

	// Lock is the default lock kind of lock workloads.
	Lock string `flag:"lock" toml:"lock"`

	// PinCPUs pins every worker thread to a host CPU.
	PinCPUs bool `flag:"pin-cpus" toml:"pin-cpus"`

	// LockupThreshold is how long a lock may be spun on before a lockup is
	// reported.
	LockupThreshold time.Duration `flag:"lockup-threshold" toml:"lockup-threshold"`

	// MetricsFile is where workload results are written in Prometheus text
	// format, if not empty.
	MetricsFile string `flag:"metrics-file" toml:"metrics-file"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", c.Threads)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1, got %d", c.Iterations)
	}
	if c.Phases < 1 {
		return fmt.Errorf("phases must be at least 1, got %d", c.Phases)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	}
	if c.LockupThreshold <= 0 {
		return fmt.Errorf("lockup threshold must be positive, got %v", c.LockupThreshold)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
	}
}

// Copy returns a deep copy of c.
func (c *Config) Copy() *Config {
	return deepcopy.Copy(c).(*Config)
}
