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

package loadgen

import (
	"context"
	"math"
)

// MaxWorkers is the largest number of workers a run may be configured with
const MaxWorkers = 50

// QueryRecord holds the parameters of a single host usage query
type QueryRecord struct {
	// Key is the host the query is scoped to. All records sharing a key are executed by the same worker.
	Key string
	// RangeStart is the inclusive start of the queried time range, passed through to the database unparsed
	RangeStart string
	// RangeEnd is the inclusive end of the queried time range, passed through to the database unparsed
	RangeEnd string
}

// Shard is the ordered list of records owned by a single worker
type Shard struct {
	Index   int
	Records []QueryRecord
}

// ShardResult holds the latency statistics gathered by the worker that owns a shard. Each instance is written by
// exactly one worker and read only after all workers have finished.
type ShardResult struct {
	Shard        int
	QueryCount   int
	TotalLatency float64
	MinLatency   float64
	MaxLatency   float64
	Latencies    []float64
}

// NewShardResult returns an empty ShardResult for the shard with the given index. Min and max are seeded with +Inf and
// -Inf so that an empty result never reports a spurious zero.
func NewShardResult(shard, capacity int) ShardResult {
	return ShardResult{
		Shard:      shard,
		MinLatency: math.Inf(1),
		MaxLatency: math.Inf(-1),
		Latencies:  make([]float64, 0, capacity),
	}
}

// Record adds a successful query's latency, in seconds, to the result
func (sr *ShardResult) Record(latency float64) {
	sr.QueryCount++
	sr.TotalLatency += latency
	sr.MinLatency = math.Min(sr.MinLatency, latency)
	sr.MaxLatency = math.Max(sr.MaxLatency, latency)
	sr.Latencies = append(sr.Latencies, latency)
}

// Report is the summary of a complete run. All times are in seconds. Times that are undefined because no query ran are
// NaN.
type Report struct {
	QueryCount    int
	TotalTime     float64
	MinTime       float64
	MaxTime       float64
	MeanTime      float64
	MedianTime    float64
	P95Time       float64
	P99Time       float64
	ActiveWorkers int
}

// Query is the database statement generated for a QueryRecord
type Query struct {
	Text string
	Args []any
}

// RowSet describes the rows returned by a query. Its contents are only used for diagnostics.
type RowSet struct {
	NumRows  int
	FirstRow []any
}

// Executor is the capability used by workers to turn records into queries and run them
type Executor interface {
	// BuildQuery generates the query for a record
	BuildQuery(rec QueryRecord) Query

	// Connect establishes a new connection. Every worker holds its own connection.
	Connect(ctx context.Context) (Conn, error)
}

// Conn is a single connection owned by one worker
type Conn interface {
	// Execute runs a query and returns a description of its rows
	Execute(ctx context.Context, q Query) (RowSet, error)

	// Close releases the connection
	Close(ctx context.Context) error
}

// ShardStore is an interface for storing and retrieving the records of a shard
type ShardStore interface {
	// WriteShard persists the records of a shard under key
	WriteShard(ctx context.Context, key string, shard Shard) error
	// ReadShard reads the records persisted under key
	ReadShard(ctx context.Context, key string) ([]QueryRecord, error)
	// Join joins key elements into a single key with delimiters that are appropriate for the backing storage
	Join(keyElements ...string) string
}
