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

package records

import (
	"bufio"
	"io"
	"strings"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

const (
	// Header is the header line written ahead of records. Any header is accepted on read.
	Header = "hostname,start_time,end_time"

	numFields = 3
)

// ParseLine parses a single comma separated input line into a QueryRecord. lineNo is the 1-based line number used for
// error reporting.
func ParseLine(line string, lineNo int) (loadgen.QueryRecord, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	fields := strings.Split(line, ",")
	if line == "" {
		fields = nil
	}

	if len(fields) != numFields {
		return loadgen.QueryRecord{}, &loadgen.InputFormatError{Line: lineNo, Fields: len(fields)}
	}

	// an empty field does not count as a field
	for _, f := range fields {
		if f == "" {
			return loadgen.QueryRecord{}, &loadgen.InputFormatError{Line: lineNo, Fields: countNonEmpty(fields)}
		}
	}

	return loadgen.QueryRecord{
		Key:        fields[0],
		RangeStart: fields[1],
		RangeEnd:   fields[2],
	}, nil
}

// FormatLine is the inverse of ParseLine
func FormatLine(rec loadgen.QueryRecord) string {
	return rec.Key + "," + rec.RangeStart + "," + rec.RangeEnd
}

// Reader reads QueryRecords from a stream. The first line of the stream is a header and is discarded unread.
type Reader struct {
	sc         *bufio.Scanner
	lineNo     int
	headerRead bool
}

func NewReader(rd io.Reader) *Reader {
	return &Reader{sc: bufio.NewScanner(rd)}
}

// Next returns the next record, or io.EOF once the stream is exhausted
func (r *Reader) Next() (loadgen.QueryRecord, error) {
	if !r.headerRead {
		r.headerRead = true
		if !r.scan() {
			return loadgen.QueryRecord{}, r.eof()
		}
	}

	if !r.scan() {
		return loadgen.QueryRecord{}, r.eof()
	}

	return ParseLine(r.sc.Text(), r.lineNo)
}

// LineNo returns the number of the last line read
func (r *Reader) LineNo() int {
	return r.lineNo
}

func (r *Reader) scan() bool {
	if r.sc.Scan() {
		r.lineNo++
		return true
	}

	return false
}

func (r *Reader) eof() error {
	if err := r.sc.Err(); err != nil {
		return err
	}

	return io.EOF
}

// ReadAll reads every record in the stream
func ReadAll(rd io.Reader) ([]loadgen.QueryRecord, error) {
	r := NewReader(rd)

	var recs []loadgen.QueryRecord
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return recs, nil
		} else if err != nil {
			return nil, err
		}

		recs = append(recs, rec)
	}
}

func countNonEmpty(fields []string) int {
	n := 0
	for _, f := range fields {
		if f != "" {
			n++
		}
	}

	return n
}
