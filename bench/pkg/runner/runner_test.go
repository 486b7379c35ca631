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

package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dolthub/querybench/go/bench/pkg/benchtest"
	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
	"github.com/dolthub/querybench/go/bench/pkg/partition"
	"github.com/dolthub/querybench/go/bench/pkg/records"
	"github.com/dolthub/querybench/go/bench/pkg/stats"
)

type countingObserver struct {
	mu      sync.Mutex
	byShard map[int]int
}

func (o *countingObserver) ObserveQuery(shard int, latency float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byShard[shard]++
}

func genShards(t *testing.T, numKeys, perKey, workers int) []loadgen.Shard {
	var recs []loadgen.QueryRecord
	for i := 0; i < perKey; i++ {
		for k := 0; k < numKeys; k++ {
			recs = append(recs, loadgen.QueryRecord{
				Key:        fmt.Sprintf("host_%06d", k),
				RangeStart: fmt.Sprintf("2017-01-01 00:%02d:00", i%60),
				RangeEnd:   fmt.Sprintf("2017-01-01 01:%02d:00", i%60),
			})
		}
	}

	shards, err := partition.Partition(recs, workers, partition.RoundRobin, zap.NewNop())
	require.NoError(t, err)

	return shards
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	input := "hostname,start_time,end_time\n" +
		"A,2017-01-01 08:59:22,2017-01-01 09:59:22\n" +
		"A,2017-01-02 13:02:02,2017-01-02 14:02:02\n" +
		"B,2017-01-02 18:50:28,2017-01-02 19:50:28\n" +
		"C,2017-01-02 15:16:31,2017-01-02 16:16:31\n"

	recs, err := records.ReadAll(strings.NewReader(input))
	require.NoError(t, err)

	shards, err := partition.Partition(recs, 2, partition.RoundRobin, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, shards, 2)

	exec := &benchtest.FakeExecutor{Delay: time.Millisecond}
	results, err := New(exec, zap.NewNop()).Run(ctx, shards)
	require.NoError(t, err)
	require.Len(t, results, 2)

	report := stats.Aggregate(results)
	require.Equal(t, 4, report.QueryCount)
	require.Equal(t, 2, report.ActiveWorkers)

	var all []float64
	for _, res := range results {
		all = append(all, res.Latencies...)
	}
	require.Len(t, all, 4)

	sum := 0.0
	for _, l := range all {
		require.GreaterOrEqual(t, l, report.MinTime)
		require.LessOrEqual(t, l, report.MaxTime)
		sum += l
	}
	require.InDelta(t, sum, report.TotalTime, 1e-12)
	require.GreaterOrEqual(t, report.MinTime, time.Millisecond.Seconds())
}

func TestEachSlotWrittenByOneWorker(t *testing.T) {
	ctx := context.Background()
	shards := genShards(t, 500, 8, loadgen.MaxWorkers)
	require.Len(t, shards, loadgen.MaxWorkers)

	exec := &benchtest.FakeExecutor{}
	obs := &countingObserver{byShard: make(map[int]int)}
	results, err := New(exec, zap.NewNop(), WithObserver(obs)).Run(ctx, shards)
	require.NoError(t, err)
	require.Len(t, results, len(shards))

	for i, shard := range shards {
		res := results[i]
		require.Equal(t, shard.Index, res.Shard)
		require.Equal(t, len(shard.Records), res.QueryCount)
		require.Len(t, res.Latencies, len(shard.Records))
		require.Equal(t, len(shard.Records), obs.byShard[shard.Index])
	}

	// every record ran once, on the single connection owned by its shard, in shard order
	execs := exec.Executions()
	byConn := make(map[int][]loadgen.QueryRecord)
	for _, e := range execs {
		byConn[e.ConnID] = append(byConn[e.ConnID], e.Record)
	}
	require.Len(t, byConn, len(shards))

	for _, shard := range shards {
		found := false
		for _, recs := range byConn {
			if recs[0] == shard.Records[0] {
				require.Equal(t, shard.Records, recs)
				found = true
			}
		}
		require.True(t, found, "shard %d not executed", shard.Index)
	}

	opened, closed := exec.Connections()
	require.Equal(t, len(shards), opened)
	require.Equal(t, len(shards), closed)
}

func TestConnectionError(t *testing.T) {
	shards := genShards(t, 4, 2, 4)
	exec := &benchtest.FakeExecutor{FailConnect: true}

	results, err := New(exec, zap.NewNop()).Run(context.Background(), shards)
	require.Nil(t, results)

	var connErr *loadgen.ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.True(t, errors.Is(err, benchtest.ErrConnectFailed))
	require.Empty(t, exec.Executions())
}

func TestQueryErrorCancelsOtherWorkers(t *testing.T) {
	shards := genShards(t, 3, 5, 3)
	exec := &benchtest.FakeExecutor{
		FailKey:  "host_000001",
		BlockKey: "host_000002",
	}

	done := make(chan struct{})
	var results []loadgen.ShardResult
	var err error
	go func() {
		defer close(done)
		results, err = New(exec, zap.NewNop()).Run(context.Background(), shards)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("blocked worker was not cancelled")
	}

	require.Nil(t, results)

	var queryErr *loadgen.QueryError
	require.True(t, errors.As(err, &queryErr))
	require.Equal(t, "host_000001", queryErr.Record.Key)
	require.Equal(t, 1, queryErr.Shard)
	require.True(t, errors.Is(err, benchtest.ErrQueryFailed))

	opened, closed := exec.Connections()
	require.Equal(t, opened, closed)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &benchtest.FakeExecutor{}
	_, err := New(exec, zap.NewNop()).Run(ctx, genShards(t, 2, 2, 2))
	require.True(t, errors.Is(err, context.Canceled))
	require.Empty(t, exec.Executions())
}

func TestNoShards(t *testing.T) {
	results, err := New(&benchtest.FakeExecutor{}, zap.NewNop()).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestTooManyShards(t *testing.T) {
	shards := make([]loadgen.Shard, loadgen.MaxWorkers+1)
	_, err := New(&benchtest.FakeExecutor{}, zap.NewNop()).Run(context.Background(), shards)

	var cfgErr *loadgen.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}
