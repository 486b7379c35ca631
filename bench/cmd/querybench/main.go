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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
	"github.com/dolthub/querybench/go/bench/pkg/metrics"
	"github.com/dolthub/querybench/go/bench/pkg/partition"
	"github.com/dolthub/querybench/go/bench/pkg/pgexec"
	"github.com/dolthub/querybench/go/bench/pkg/records"
	"github.com/dolthub/querybench/go/bench/pkg/runner"
	"github.com/dolthub/querybench/go/bench/pkg/stats"
)

const (
	dsnEnvVar      = "QUERYBENCH_DSN"
	pushJob        = "querybench"
	noInputMessage = "no input CSV content, exiting"
)

type options struct {
	workers     int
	inFile      string
	verbose     bool
	strategy    string
	pg          pgexec.Config
	shardDir    string
	pushgateway string
	profile     string
}

// validate checks every setting that can be checked without reading the input
func (opts options) validate() error {
	if err := partition.ValidateWorkers(opts.workers); err != nil {
		return err
	}

	if _, err := partition.ParseStrategy(opts.strategy); err != nil {
		return err
	}

	switch opts.profile {
	case "", "cpu", "mem", "blocking", "trace":
	default:
		return loadgen.NewConfigurationError("unexpected profile type '%s'. options are (cpu,mem,blocking,trace)", opts.profile)
	}

	return opts.pg.Validate()
}

func startProfiling(profileType string) func() {
	switch profileType {
	case "cpu":
		fmt.Fprintln(os.Stderr, "cpu profiling enabled.")
		return profile.Start(profile.CPUProfile).Stop
	case "mem":
		fmt.Fprintln(os.Stderr, "mem profiling enabled.")
		return profile.Start(profile.MemProfile).Stop
	case "blocking":
		fmt.Fprintln(os.Stderr, "block profiling enabled")
		return profile.Start(profile.BlockProfile).Stop
	case "trace":
		fmt.Fprintln(os.Stderr, "trace profiling enabled")
		return profile.Start(profile.TraceProfile).Stop
	default:
		panic("Unexpected prof flag: " + profileType)
	}
}

func errExit(message string) {
	fmt.Fprintln(os.Stderr, message+"\n")
	os.Exit(1)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	return cfg.Build()
}

func newRootCmd() *cobra.Command {
	opts := options{pg: pgexec.DefaultConfig()}
	if dsn := os.Getenv(dsnEnvVar); dsn != "" {
		opts.pg.DSN = dsn
	}

	cmd := &cobra.Command{
		Use:           "querybench -n <num_workers> [-f <in_file>] [-v]",
		Short:         "Benchmark SQL queries against hypertable with sample data",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}

			logger, err := newLogger(opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logger.Sync()

			if opts.profile != "" {
				defer startProfiling(opts.profile)()
			}

			exec, err := pgexec.New(opts.pg)
			if err != nil {
				return err
			}

			in, err := records.Open(opts.inFile)
			if err != nil {
				return err
			}
			defer in.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, logger, exec, in, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.workers, "workers", "n", 0, fmt.Sprintf("the number of workers between 1 and %d", loadgen.MaxWorkers))
	flags.StringVarP(&opts.inFile, "file", "f", "", "the input CSV file name containing the queries' parameters. If omitted, standard input is assumed")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "print debug output")
	flags.StringVar(&opts.strategy, "strategy", string(partition.RoundRobin), "how hosts are assigned to workers. Supported options: 'round-robin', 'hash'")
	flags.StringVar(&opts.pg.DSN, "dsn", opts.pg.DSN, "connection string of the database. Defaults to $"+dsnEnvVar+" when set")
	flags.StringVar(&opts.pg.Table, "table", opts.pg.Table, "hypertable holding the cpu usage data")
	flags.StringVar(&opts.pg.Bucket, "bucket", opts.pg.Bucket, "time_bucket width used by the queries")
	flags.StringVar(&opts.shardDir, "shard-dir", "", "directory where the records of each shard are written before the run")
	flags.StringVar(&opts.pushgateway, "pushgateway", "", "Prometheus Pushgateway URL the run's metrics are pushed to")
	flags.StringVar(&opts.profile, "profile", "", "options are (cpu,mem,blocking,trace)")
	_ = cmd.MarkFlagRequired("workers")

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errExit(err.Error())
	}
}

// run partitions the input, executes every shard and writes the report to out. Nothing is executed if the input holds
// no records.
func run(ctx context.Context, opts options, logger *zap.Logger, exec loadgen.Executor, in io.Reader, out, errOut io.Writer) error {
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	strategy, err := partition.ParseStrategy(opts.strategy)
	if err != nil {
		return err
	}

	p, err := partition.New(opts.workers, strategy, logger)
	if err != nil {
		return err
	}

	rd := records.NewReader(in)
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}

		p.Add(rec)
	}

	shards := p.Shards()
	if len(shards) == 0 {
		fmt.Fprintln(errOut, noInputMessage)
		return nil
	}

	if opts.shardDir != "" {
		if err = writeShards(ctx, opts.shardDir, shards); err != nil {
			return err
		}
	}

	recorder := metrics.NewRecorder(runID)
	start := time.Now()
	results, err := runner.New(exec, logger, runner.WithObserver(recorder)).Run(ctx, shards)
	if err != nil {
		return err
	}
	logger.Info("workers finished", zap.Int("real_workers", len(shards)), zap.Duration("took", time.Since(start)))

	if err = stats.WriteReport(out, stats.Aggregate(results)); err != nil {
		return err
	}

	if opts.pushgateway != "" {
		if err = recorder.Push(ctx, opts.pushgateway, pushJob); err != nil {
			return fmt.Errorf("failed to push metrics to '%s': %w", opts.pushgateway, err)
		}
	}

	return nil
}

func writeShards(ctx context.Context, dir string, shards []loadgen.Shard) error {
	store, err := records.NewFilesysShardStore(dir)
	if err != nil {
		return &loadgen.ConfigurationError{Msg: "invalid shard directory " + dir, Err: err}
	}

	for _, shard := range shards {
		if err = store.WriteShard(ctx, store.Join(records.ShardKey(shard.Index)), shard); err != nil {
			return fmt.Errorf("failed to write shard %d: %w", shard.Index, err)
		}
	}

	return nil
}
