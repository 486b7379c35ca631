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

package pgexec

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

const (
	DefaultDSN    = "dbname=homework user=postgres password=postgres"
	DefaultTable  = "cpu_usage"
	DefaultBucket = "1 minute"
)

var (
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	bucketRe = regexp.MustCompile(`^[0-9]+ ?[A-Za-z]+$`)
)

// Config holds the connection and query settings
type Config struct {
	// DSN is a libpq style connection string or postgres:// URL
	DSN string
	// Table is the hypertable holding the host usage data
	Table string
	// Bucket is the time_bucket width, e.g. "1 minute"
	Bucket string
}

func DefaultConfig() Config {
	return Config{
		DSN:    DefaultDSN,
		Table:  DefaultTable,
		Bucket: DefaultBucket,
	}
}

// Validate checks the parts of the config which are spliced into the query text
func (cfg Config) Validate() error {
	if !identRe.MatchString(cfg.Table) {
		return loadgen.NewConfigurationError("invalid table name '%s'", cfg.Table)
	}

	if !bucketRe.MatchString(cfg.Bucket) {
		return loadgen.NewConfigurationError("invalid bucket width '%s'", cfg.Bucket)
	}

	if _, err := pgx.ParseConfig(cfg.DSN); err != nil {
		return &loadgen.ConfigurationError{Msg: "invalid connection string", Err: err}
	}

	return nil
}

var _ loadgen.Executor = (*Executor)(nil)

// Executor runs host usage queries against PostgreSQL, opening one connection per worker
type Executor struct {
	cfg   Config
	query string
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Executor{
		cfg: cfg,
		query: fmt.Sprintf("SELECT time_bucket('%s', ts), MIN(usage), MAX(usage) "+
			"FROM %s "+
			"WHERE host = $1 AND ts BETWEEN $2::text::timestamptz AND $3::text::timestamptz "+
			"GROUP BY 1", cfg.Bucket, cfg.Table),
	}, nil
}

// BuildQuery returns the per minute min/max usage query for the record's host and time range
func (e *Executor) BuildQuery(rec loadgen.QueryRecord) loadgen.Query {
	return loadgen.Query{
		Text: e.query,
		Args: []any{rec.Key, rec.RangeStart, rec.RangeEnd},
	}
}

func (e *Executor) Connect(ctx context.Context) (loadgen.Conn, error) {
	conn, err := pgx.Connect(ctx, e.cfg.DSN)
	if err != nil {
		return nil, err
	}

	return &Conn{conn: conn}, nil
}

// Conn is a single PostgreSQL connection
type Conn struct {
	conn *pgx.Conn
}

// Execute runs the query and reads every row it returns
func (c *Conn) Execute(ctx context.Context, q loadgen.Query) (loadgen.RowSet, error) {
	rows, err := c.conn.Query(ctx, q.Text, q.Args...)
	if err != nil {
		return loadgen.RowSet{}, err
	}
	defer rows.Close()

	var rs loadgen.RowSet
	for rows.Next() {
		if rs.NumRows == 0 {
			rs.FirstRow, err = rows.Values()
			if err != nil {
				return loadgen.RowSet{}, err
			}
		}

		rs.NumRows++
	}

	if err = rows.Err(); err != nil {
		return loadgen.RowSet{}, err
	}

	return rs, nil
}

func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
