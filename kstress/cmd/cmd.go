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

// Package cmd holds implementations of the kstress commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"kernsync.dev/kernsync/kstress/config"
	"kernsync.dev/kernsync/kstress/metrics"
	"kernsync.dev/kernsync/kstress/workload"
	"kernsync.dev/kernsync/pkg/log"
)

// intFlags can be used with comma-separated int flags that may appear
// multiple times.
type intFlags []int

// String implements flag.Value.
func (i *intFlags) String() string {
	return fmt.Sprintf("%v", *i)
}

// Get implements flag.Getter.
func (i *intFlags) Get() any {
	return i
}

// Set implements flag.Value.
func (i *intFlags) Set(s string) error {
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("invalid flag value: %v", err)
		}
		if n < 1 {
			return fmt.Errorf("flag value must be greater than 0: %d", n)
		}
		*i = append(*i, n)
	}
	return nil
}

// stringFlags can be used with comma-separated string flags that may appear
// multiple times.
type stringFlags []string

// String implements flag.Value.
func (s *stringFlags) String() string {
	return strings.Join(*s, ",")
}

// Get implements flag.Getter.
func (s *stringFlags) Get() any {
	return s
}

// Set implements flag.Value.
func (s *stringFlags) Set(v string) error {
	*s = append(*s, strings.Split(v, ",")...)
	return nil
}

// stdout is where command output is printed.
var stdout io.Writer = os.Stdout

// options returns the workload options set by conf.
func options(conf *config.Config) workload.Options {
	if n := runtime.GOMAXPROCS(0); conf.Threads > n {
		log.Warningf("%d threads on %d processors: spinlock waiters never yield, so contended handoffs wait for preemption", conf.Threads, n)
	}
	return workload.Options{
		Threads:    conf.Threads,
		Iterations: conf.Iterations,
		Phases:     conf.Phases,
		Duration:   conf.Duration,
		PinCPUs:    conf.PinCPUs,
	}
}

// report logs and prints results, and writes them to the metrics file if
// conf names one.
func report(w io.Writer, conf *config.Config, results []*workload.Result) error {
	for _, r := range results {
		min, max := r.Spread()
		log.Infof("Workload %s/%s: %d threads, %d ops in %v, per worker %d..%d", r.Workload, r.Lock, r.Threads, r.Ops, r.Elapsed, min, max)
	}
	if err := outputTable(w, results); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if conf.MetricsFile != "" {
		if err := metrics.WriteFile(conf.MetricsFile, results); err != nil {
			return err
		}
		log.Infof("Metrics written to %q", conf.MetricsFile)
	}
	return nil
}

// outputTable prints one row per result.
func outputTable(w io.Writer, results []*workload.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(tw, "WORKLOAD\tLOCK\tTHREADS\tOPS\tELAPSED\tOPS/S\tMIN\tMAX\n"); err != nil {
		return err
	}
	for _, r := range results {
		lock := r.Lock
		if lock == "" {
			lock = "-"
		}
		min, max := r.Spread()
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%v\t%.0f\t%d\t%d\n",
			r.Workload,
			lock,
			r.Threads,
			r.Ops,
			r.Elapsed.Round(time.Microsecond),
			r.OpsPerSecond(),
			min,
			max,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// runOne reports a single workload result, or its error.
func runOne(w io.Writer, conf *config.Config, name string, res *workload.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s workload failed: %w", name, err)
	}
	return report(w, conf, []*workload.Result{res})
}
