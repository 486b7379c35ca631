// Copyright 2023 Dolthub, Inc.
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

package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "querybench"

// Recorder collects per shard query metrics in its own registry
type Recorder struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	queries  *prometheus.CounterVec
}

// NewRecorder returns a Recorder whose metrics carry a run_id const label
func NewRecorder(runID string) *Recorder {
	constLabels := prometheus.Labels{"run_id": runID}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "query_duration_seconds",
			Help:        "Latency of successful queries.",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 16),
			ConstLabels: constLabels,
		}, []string{"shard"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "queries_total",
			Help:        "Number of successful queries.",
			ConstLabels: constLabels,
		}, []string{"shard"}),
	}

	r.registry.MustRegister(r.duration, r.queries)

	return r
}

// ObserveQuery records a successful query's latency in seconds
func (r *Recorder) ObserveQuery(shard int, latency float64) {
	label := strconv.Itoa(shard)
	r.duration.WithLabelValues(label).Observe(latency)
	r.queries.WithLabelValues(label).Inc()
}

// Registry returns the registry holding the recorder's metrics
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Push sends the collected metrics to the Prometheus Pushgateway at url, replacing any metrics previously pushed for job
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(r.registry).PushContext(ctx)
}
