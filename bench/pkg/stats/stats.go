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

package stats

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

const (
	// histogram bounds in microseconds
	histMinMicros = 1
	histMaxMicros = int64(3600 * 1_000_000)
	histSigFigs   = 3
)

// Aggregate combines the results of every shard into a single Report. It must only be called once every worker has
// finished. Shards without samples do not affect min or max.
func Aggregate(results []loadgen.ShardResult) loadgen.Report {
	r := loadgen.Report{
		MinTime: math.Inf(1),
		MaxTime: math.Inf(-1),
	}

	total := 0
	for _, res := range results {
		total += len(res.Latencies)
	}
	all := make([]float64, 0, total)

	for _, res := range results {
		r.QueryCount += res.QueryCount
		r.TotalTime += res.TotalLatency

		if res.QueryCount > 0 {
			r.ActiveWorkers++
			r.MinTime = math.Min(r.MinTime, res.MinLatency)
		}
		r.MaxTime = math.Max(r.MaxTime, res.MaxLatency)

		all = append(all, res.Latencies...)
	}

	if r.QueryCount == 0 {
		nan := math.NaN()
		r.MinTime, r.MaxTime, r.MeanTime, r.MedianTime, r.P95Time, r.P99Time = nan, nan, nan, nan, nan, nan
		return r
	}

	r.MeanTime = r.TotalTime / float64(r.QueryCount)

	sort.Float64s(all)
	r.MedianTime = sortedMedian(all)
	r.P95Time, r.P99Time = percentiles(all)

	return r
}

// Median returns the median of samples, or NaN if there are none. samples is not modified.
func Median(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return sortedMedian(sorted)
}

func sortedMedian(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}

	half := n / 2
	if n%2 == 1 {
		return sorted[half]
	}

	return (sorted[half-1] + sorted[half]) / 2
}

// percentiles returns the 95th and 99th percentile of the samples as seconds
func percentiles(samples []float64) (float64, float64) {
	h := hdrhistogram.New(histMinMicros, histMaxMicros, histSigFigs)
	for _, s := range samples {
		micros := int64(math.Round(s * 1e6))
		if micros < histMinMicros {
			micros = histMinMicros
		} else if micros > histMaxMicros {
			micros = histMaxMicros
		}

		// values are clamped to the histogram's range so this cannot fail
		_ = h.RecordValue(micros)
	}

	return float64(h.ValueAtQuantile(95)) / 1e6, float64(h.ValueAtQuantile(99)) / 1e6
}

// WriteReport writes a human readable summary of the report
func WriteReport(wr io.Writer, r loadgen.Report) error {
	_, err := fmt.Fprintf(wr,
		"Benchmark statistics (all times are in seconds):\n"+
			"Total # of queries:           %10d\n"+
			"Total queries execution time: %10.5f\n"+
			"Minimum       execution time: %10.5f\n"+
			"Maximum       execution time: %10.5f\n"+
			"Average       execution time: %10.5f\n"+
			"Median        execution time: %10.5f\n"+
			"95th pct      execution time: %10.5f\n"+
			"99th pct      execution time: %10.5f\n",
		r.QueryCount,
		r.TotalTime,
		r.MinTime,
		r.MaxTime,
		r.MeanTime,
		r.MedianTime,
		r.P95Time,
		r.P99Time,
	)

	return err
}
