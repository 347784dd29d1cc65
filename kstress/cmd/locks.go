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

// Mutex implements subcommands.Command for the "mutex" command.
type Mutex struct {
	lock string
}

// Name implements subcommands.Command.Name.
func (*Mutex) Name() string {
	return "mutex"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Mutex) Synopsis() string {
	return "increment a shared counter under a lock and check for lost updates"
}

// Usage implements subcommands.Command.Usage.
func (*Mutex) Usage() string {
	return `mutex [flags] - contend on a lock from every worker.

With --lock=spinlock-irq, workers also raise interrupts from inside the
critical section whose handlers take the same lock.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Mutex) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.lock, "lock", "", "lock kind, overrides the global --lock flag.")
}

// Execute implements subcommands.Command.Execute.
func (m *Mutex) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	kind := m.lock
	if kind == "" {
		kind = conf.Lock
	}
	res, err := workload.Mutex(ctx, kind, options(conf))
	if err := runOne(stdout, conf, "mutex", res, err); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}

// Fairness implements subcommands.Command for the "fairness" command.
type Fairness struct {
	lock string
}

// Name implements subcommands.Command.Name.
func (*Fairness) Name() string {
	return "fairness"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Fairness) Synopsis() string {
	return "measure how evenly a lock is handed out among workers"
}

// Usage implements subcommands.Command.Usage.
func (*Fairness) Usage() string {
	return `fairness [flags] - take a lock as often as possible for --duration.

FIFO locks (ticket, mcs) should show a narrow MIN..MAX spread.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (fa *Fairness) SetFlags(f *flag.FlagSet) {
	f.StringVar(&fa.lock, "lock", "", "lock kind, overrides the global --lock flag.")
}

// Execute implements subcommands.Command.Execute.
func (fa *Fairness) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	kind := fa.lock
	if kind == "" {
		kind = conf.Lock
	}
	res, err := workload.Fairness(ctx, kind, options(conf))
	if err := runOne(stdout, conf, "fairness", res, err); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}
