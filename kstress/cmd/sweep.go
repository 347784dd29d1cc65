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
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/time/rate"
	"kernsync.dev/kernsync/kstress/cmd/util"
	"kernsync.dev/kernsync/kstress/config"
	"kernsync.dev/kernsync/kstress/workload"
	"kernsync.dev/kernsync/pkg/log"
)

// Sweep implements subcommands.Command for the "sweep" command.
type Sweep struct {
	locks         stringFlags
	threads       intFlags
	runsPerSecond float64
}

// Name implements subcommands.Command.Name.
func (*Sweep) Name() string {
	return "sweep"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Sweep) Synopsis() string {
	return "run the mutex workload over several lock kinds and thread counts"
}

// Usage implements subcommands.Command.Usage.
func (*Sweep) Usage() string {
	return `sweep [flags] - compare locks side by side.

Example:
	kstress sweep --locks=ticket,mcs --thread-counts=1,2,4,8
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Sweep) SetFlags(f *flag.FlagSet) {
	f.Var(&s.locks, "locks", "comma-separated lock kinds to run, default is every kind.")
	f.Var(&s.threads, "thread-counts", "comma-separated thread counts to run, default is powers of two up to GOMAXPROCS.")
	f.Float64Var(&s.runsPerSecond, "runs-per-second", 0, "limit how many runs start per second to let the host settle, 0 means no limit.")
}

// Execute implements subcommands.Command.Execute.
func (s *Sweep) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	locks := []string(s.locks)
	if len(locks) == 0 {
		locks = workload.Kinds
	}
	for _, kind := range locks {
		if err := workload.ValidKind(kind); err != nil {
			return util.Errorf("%v", err)
		}
	}
	threads := []int(s.threads)
	if len(threads) == 0 {
		for n := 1; n <= runtime.GOMAXPROCS(0); n *= 2 {
			threads = append(threads, n)
		}
	}

	limit := rate.Inf
	if s.runsPerSecond > 0 {
		limit = rate.Limit(s.runsPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	var results []*workload.Result
	for _, kind := range locks {
		for _, n := range threads {
			if err := limiter.Wait(ctx); err != nil {
				return util.Errorf("sweep interrupted: %v", err)
			}
			opts := options(conf)
			opts.Threads = n
			log.Debugf("Sweep: %s with %d threads", kind, n)
			res, err := workload.Mutex(ctx, kind, opts)
			if err != nil {
				return util.Errorf("mutex workload with %s and %d threads failed: %v", kind, n, err)
			}
			results = append(results, res)
		}
	}
	if err := report(stdout, conf, results); err != nil {
		return util.Errorf("%v", err)
	}
	return subcommands.ExitSuccess
}
