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

// Package cli is the main entrypoint for kstress.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"kernsync.dev/kernsync/kstress/cmd"
	"kernsync.dev/kernsync/kstress/cmd/util"
	"kernsync.dev/kernsync/kstress/config"
	"kernsync.dev/kernsync/pkg/log"
	"kernsync.dev/kernsync/pkg/spin"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	var emitters log.MultiEmitter
	if conf.LogFilename != "" {
		f, err := log.OpenFile(conf.LogFilename)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		util.ErrorLogger = f
		emitters = append(emitters, newEmitter(conf.LogFormat, f))
		if conf.AlsoLogToStderr {
			emitters = append(emitters, newEmitter(conf.LogFormat, os.Stderr))
		}
	} else {
		// Stdout is reserved for results.
		emitters = append(emitters, newEmitter(conf.LogFormat, os.Stderr))
	}

	switch len(emitters) {
	case 1:
		// Use the singular emitter to avoid needless
		// `for` loop overhead when logging to a single place.
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}
	if conf.Debug {
		log.SetLevel(log.Debug)
	}
	spin.LockupThreshold = conf.LockupThreshold

	const delimString = `**************** kstress ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, PID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Interrupting a run stops the workloads at their next cancellation
	// check.
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(ctx, conf)
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
		os.Exit(0)
	}
	log.Warningf("Failure to execute command, err: %v", subcmdCode)
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// kstress.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	const lockGroup = "locks"
	cb(new(cmd.Mutex), lockGroup)
	cb(new(cmd.Fairness), lockGroup)
	cb(new(cmd.RWLock), lockGroup)
	cb(new(cmd.Sweep), lockGroup)

	const syncGroup = "synchronization"
	cb(new(cmd.Barrier), syncGroup)
	cb(new(cmd.Condvar), syncGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
