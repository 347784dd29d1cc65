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

package cmd

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"kernsync.dev/kernsync/kstress/cmd/util"
	"kernsync.dev/kernsync/kstress/config"
	"kernsync.dev/kernsync/kstress/workload"
)

// Barrier implements subcommands.Command for the "barrier" command.
type Barrier struct {
	kind string
}

// Name implements subcommands.Command.Name.
func (*Barrier) Name() string {
	return "barrier"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Barrier) Synopsis() string {
	return "run workers through barrier phases and check that none leaves early"
}

// Usage implements subcommands.Command.Usage.
func (*Barrier) Usage() string {
	return `barrier [flags] - run --phases barrier phases with every worker.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Barrier) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.kind, "kind", workload.BarrierGroup, "barrier kind: group or core.")
}

// Execute implements subcommands.Command.Execute.
func (b *Barrier) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	res, err := workload.Barrier(ctx, b.kind, options(conf))
	if err := runOne(stdout, conf, "barrier", res, err); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// Condvar implements subcommands.Command for the "condvar" command.
type Condvar struct{}

// Name implements subcommands.Command.Name.
func (*Condvar) Name() string {
	return "condvar"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Condvar) Synopsis() string {
	return "pass items through a bounded queue built on condition variables"
}

// Usage implements subcommands.Command.Usage.
func (*Condvar) Usage() string {
	return `condvar [flags] - half of the workers produce, the other half consume.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Condvar) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Condvar) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	res, err := workload.Condvar(ctx, options(conf))
	if err := runOne(stdout, conf, "condvar", res, err); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// RWLock implements subcommands.Command for the "rwlock" command.
type RWLock struct{}

// Name implements subcommands.Command.Name.
func (*RWLock) Name() string {
	return "rwlock"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*RWLock) Synopsis() string {
	return "mix readers and writers and check reader/writer exclusion"
}

// Usage implements subcommands.Command.Usage.
func (*RWLock) Usage() string {
	return `rwlock [flags] - one worker in four writes, the rest read.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*RWLock) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*RWLock) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	res, err := workload.RWLock(ctx, options(conf))
	if err := runOne(stdout, conf, "rwlock", res, err); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}
