// Copyright 2024 The kernsync Authors.
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

// Package metrics exports kstress workload results in the Prometheus text
// exposition format.
package metrics

import (
	"fmt"
	"io"
	"os"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
	"kernsync.dev/kernsync/kstress/workload"
)

// Metric names.
const (
	OpsTotal     = "kstress_ops_total"
	WorkerOps    = "kstress_worker_ops_total"
	Elapsed      = "kstress_elapsed_seconds"
	OpsPerSecond = "kstress_ops_per_second"
	Threads      = "kstress_threads"
)

// labels returns the label pairs identifying r, in name order. extra pairs
// are name, value, and must sort after "lock".
func labels(r *workload.Result, extra ...string) []*dto.LabelPair {
	var lp []*dto.LabelPair
	if r.Lock != "" {
		lp = append(lp, &dto.LabelPair{Name: proto.String("lock"), Value: proto.String(r.Lock)})
	}
	for i := 0; i+1 < len(extra); i += 2 {
		lp = append(lp, &dto.LabelPair{Name: proto.String(extra[i]), Value: proto.String(extra[i+1])})
	}
	return append(lp, &dto.LabelPair{Name: proto.String("workload"), Value: proto.String(r.Workload)})
}

func gauge(lp []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{Label: lp, Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func counter(lp []*dto.LabelPair, v float64) *dto.Metric {
	return &dto.Metric{Label: lp, Counter: &dto.Counter{Value: proto.Float64(v)}}
}

// Families converts results into metric families, sorted by name.
func Families(results []*workload.Result) []*dto.MetricFamily {
	var (
		elapsed = &dto.MetricFamily{
			Name: proto.String(Elapsed),
			Help: proto.String("Wall time of the workload run."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		opsPerSecond = &dto.MetricFamily{
			Name: proto.String(OpsPerSecond),
			Help: proto.String("Throughput of the workload run."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		opsTotal = &dto.MetricFamily{
			Name: proto.String(OpsTotal),
			Help: proto.String("Operations completed by all workers."),
			Type: dto.MetricType_COUNTER.Enum(),
		}
		threads = &dto.MetricFamily{
			Name: proto.String(Threads),
			Help: proto.String("Number of workers."),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		workerOps = &dto.MetricFamily{
			Name: proto.String(WorkerOps),
			Help: proto.String("Operations completed by a single worker."),
			Type: dto.MetricType_COUNTER.Enum(),
		}
	)
	for _, r := range results {
		elapsed.Metric = append(elapsed.Metric, gauge(labels(r), r.Elapsed.Seconds()))
		opsPerSecond.Metric = append(opsPerSecond.Metric, gauge(labels(r), r.OpsPerSecond()))
		opsTotal.Metric = append(opsTotal.Metric, counter(labels(r), float64(r.Ops)))
		threads.Metric = append(threads.Metric, gauge(labels(r), float64(r.Threads)))
		for id, n := range r.PerWorker {
			workerOps.Metric = append(workerOps.Metric, counter(labels(r, "worker", strconv.Itoa(id)), float64(n)))
		}
	}
	return []*dto.MetricFamily{elapsed, opsPerSecond, opsTotal, threads, workerOps}
}

// Write writes results to w in the Prometheus text format.
func Write(w io.Writer, results []*workload.Result) error {
	for _, mf := range Families(results) {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("writing metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile writes results to the file at path, replacing its contents.
func WriteFile(path string, results []*workload.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	if err := Write(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
