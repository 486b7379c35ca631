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

package benchtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

var (
	ErrConnectFailed = errors.New("connection refused")
	ErrQueryFailed   = errors.New("relation \"cpu_usage\" does not exist")
)

// Execution is a single query run by a FakeExecutor connection
type Execution struct {
	ConnID int
	Record loadgen.QueryRecord
}

var _ loadgen.Executor = (*FakeExecutor)(nil)

// FakeExecutor is an in memory loadgen.Executor which records every query it runs along with the id of the
// connection that ran it
type FakeExecutor struct {
	// Delay is how long every query takes
	Delay time.Duration
	// FailKey causes queries for this key to fail
	FailKey string
	// BlockKey causes queries for this key to block until their context is cancelled
	BlockKey string
	// FailConnect causes every Connect call to fail
	FailConnect bool

	nextConnID atomic.Int32
	open       atomic.Int32
	closed     atomic.Int32

	mu         sync.Mutex
	executions []Execution
}

func (fe *FakeExecutor) BuildQuery(rec loadgen.QueryRecord) loadgen.Query {
	return loadgen.Query{
		Text: fmt.Sprintf("SELECT usage FROM fake WHERE host='%s' AND ts BETWEEN '%s' AND '%s'", rec.Key, rec.RangeStart, rec.RangeEnd),
		Args: []any{rec.Key, rec.RangeStart, rec.RangeEnd},
	}
}

func (fe *FakeExecutor) Connect(ctx context.Context) (loadgen.Conn, error) {
	if fe.FailConnect {
		return nil, ErrConnectFailed
	}

	fe.open.Add(1)
	return &fakeConn{fe: fe, id: int(fe.nextConnID.Add(1))}, nil
}

// Executions returns a copy of every query run so far
func (fe *FakeExecutor) Executions() []Execution {
	fe.mu.Lock()
	defer fe.mu.Unlock()

	execs := make([]Execution, len(fe.executions))
	copy(execs, fe.executions)

	return execs
}

// Connections returns the number of connections opened and closed so far
func (fe *FakeExecutor) Connections() (opened, closed int) {
	return int(fe.open.Load()), int(fe.closed.Load())
}

type fakeConn struct {
	fe     *FakeExecutor
	id     int
	closed bool
}

func (c *fakeConn) Execute(ctx context.Context, q loadgen.Query) (loadgen.RowSet, error) {
	if c.closed {
		return loadgen.RowSet{}, errors.New("connection closed")
	}

	rec := loadgen.QueryRecord{Key: q.Args[0].(string), RangeStart: q.Args[1].(string), RangeEnd: q.Args[2].(string)}

	if c.fe.FailKey != "" && rec.Key == c.fe.FailKey {
		return loadgen.RowSet{}, ErrQueryFailed
	} else if c.fe.BlockKey != "" && rec.Key == c.fe.BlockKey {
		<-ctx.Done()
		return loadgen.RowSet{}, ctx.Err()
	}

	if c.fe.Delay > 0 {
		select {
		case <-ctx.Done():
			return loadgen.RowSet{}, ctx.Err()
		case <-time.After(c.fe.Delay):
		}
	}

	c.fe.mu.Lock()
	c.fe.executions = append(c.fe.executions, Execution{ConnID: c.id, Record: rec})
	c.fe.mu.Unlock()

	return loadgen.RowSet{NumRows: 1, FirstRow: []any{rec.RangeStart, 0.0, 100.0}}, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	if c.closed {
		return errors.New("connection already closed")
	}

	c.closed = true
	c.fe.closed.Add(1)

	return nil
}
