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
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

// Observer is notified of every successful query
type Observer interface {
	ObserveQuery(shard int, latency float64)
}

type Option func(*Runner)

// WithObserver attaches an Observer to the Runner
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// Runner executes the queries of each shard on its own worker
type Runner struct {
	executor loadgen.Executor
	logger   *zap.Logger
	observer Observer
}

// New returns a new Runner object
func New(executor loadgen.Executor, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		executor: executor,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts one worker per shard and waits for all of them to finish. The returned slice holds one result per shard
// in the same order as shards. The first worker to fail cancels the others, and its error is returned with no results.
func (r *Runner) Run(ctx context.Context, shards []loadgen.Shard) ([]loadgen.ShardResult, error) {
	if len(shards) > loadgen.MaxWorkers {
		return nil, loadgen.NewConfigurationError("%d shards exceeds the maximum of %d workers", len(shards), loadgen.MaxWorkers)
	}

	// each slot is written only by the worker that owns the shard at the same index
	results := make([]loadgen.ShardResult, len(shards))
	for i, shard := range shards {
		results[i] = loadgen.NewShardResult(shard.Index, len(shard.Records))
	}

	r.logger.Info("starting workers", zap.Int("real_workers", len(shards)))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(loadgen.MaxWorkers)

	for i := range shards {
		shard := shards[i]
		result := &results[i]
		eg.Go(func() error {
			return r.processShard(egCtx, shard, result)
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (r *Runner) processShard(ctx context.Context, shard loadgen.Shard, result *loadgen.ShardResult) error {
	start := time.Now()
	r.logger.Info("Processing Shard Start", zap.Int("shard", shard.Index), zap.Int("records", len(shard.Records)))
	defer func() {
		r.logger.Info("Processing Shard End", zap.Int("shard", shard.Index), zap.Int("queries", result.QueryCount), zap.Duration("took", time.Since(start)))
	}()

	conn, err := r.executor.Connect(ctx)
	if err != nil {
		return &loadgen.ConnectionError{Shard: shard.Index, Err: err}
	}
	defer func() {
		// the connection is released even if ctx was cancelled
		if err := conn.Close(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to close connection", zap.Int("shard", shard.Index), zap.Error(err))
		}
	}()

	for _, rec := range shard.Records {
		if err := ctx.Err(); err != nil {
			return err
		}

		q := r.executor.BuildQuery(rec)
		if ce := r.logger.Check(zap.DebugLevel, "executing query"); ce != nil {
			ce.Write(zap.Int("shard", shard.Index), zap.String("query", q.Text), zap.Any("args", q.Args))
		}

		queryStart := time.Now()
		rows, err := conn.Execute(ctx, q)
		latency := time.Since(queryStart).Seconds()

		if err != nil {
			return &loadgen.QueryError{Shard: shard.Index, Record: rec, Query: q.Text, Err: err}
		}

		result.Record(latency)
		if r.observer != nil {
			r.observer.ObserveQuery(shard.Index, latency)
		}

		if ce := r.logger.Check(zap.DebugLevel, "query complete"); ce != nil {
			ce.Write(zap.Int("shard", shard.Index), zap.Int("rows", rows.NumRows), zap.Any("first_row", rows.FirstRow), zap.Float64("latency", latency))
		}
	}

	return nil
}
