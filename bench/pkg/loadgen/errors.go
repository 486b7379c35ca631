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
	"errors"
	"fmt"
)

// ErrShardDoesntExist is returned when reading a shard for a key that was never written
var ErrShardDoesntExist = errors.New("shard doesn't exist")

// ConfigurationError is returned for invalid settings or an unusable input source. It is always reported before any
// input is partitioned.
type ConfigurationError struct {
	Msg string
	Err error
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}

	return e.Msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// InputFormatError is returned for an input line that does not hold exactly three fields
type InputFormatError struct {
	// Line is the 1-based line number, counting the header
	Line   int
	Fields int
}

func (e *InputFormatError) Error() string {
	return fmt.Sprintf("wrong number of fields: %d in input line %d", e.Fields, e.Line)
}

// ConnectionError is returned when a worker cannot connect to the database
type ConnectionError struct {
	Shard int
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("worker %d: connection to database failed: %v", e.Shard, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// QueryError is returned when a worker's query fails
type QueryError struct {
	Shard  int
	Record QueryRecord
	Query  string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("worker %d: query failed for host '%s': %v; content: '%s'", e.Shard, e.Record.Key, e.Err, e.Query)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
