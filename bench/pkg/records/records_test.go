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
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

const testInput = `hostname,start_time,end_time
host_000008,2017-01-01 08:59:22,2017-01-01 09:59:22
host_000001,2017-01-02 13:02:02,2017-01-02 14:02:02
host_000008,2017-01-02 18:50:28,2017-01-02 19:50:28
`

func TestParseLine(t *testing.T) {
	rec, err := ParseLine("host1,2020-01-01T00:00:00,2020-01-01T01:00:00\n", 2)
	require.NoError(t, err)
	require.Equal(t, loadgen.QueryRecord{Key: "host1", RangeStart: "2020-01-01T00:00:00", RangeEnd: "2020-01-01T01:00:00"}, rec)

	rec, err = ParseLine("host1,a,b\r\n", 2)
	require.NoError(t, err)
	require.Equal(t, "b", rec.RangeEnd)

	tests := []struct {
		line   string
		fields int
	}{
		{"host1,2020-01-01T00:00:00", 2},
		{"host1,a,b,c", 4},
		{"", 0},
		{"host1,,b", 2},
	}

	for _, test := range tests {
		_, err = ParseLine(test.line, 5)
		var fmtErr *loadgen.InputFormatError
		require.True(t, errors.As(err, &fmtErr), "line %q", test.line)
		require.Equal(t, 5, fmtErr.Line)
		require.Equal(t, test.fields, fmtErr.Fields)
	}
}

func TestFormatLineRoundTrip(t *testing.T) {
	rec := loadgen.QueryRecord{Key: "h", RangeStart: "s", RangeEnd: "e"}
	parsed, err := ParseLine(FormatLine(rec), 1)
	require.NoError(t, err)
	require.Equal(t, rec, parsed)
}

func TestReadAll(t *testing.T) {
	recs, err := ReadAll(strings.NewReader(testInput))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "host_000008", recs[0].Key)
	require.Equal(t, "host_000001", recs[1].Key)
	require.Equal(t, "2017-01-02 19:50:28", recs[2].RangeEnd)

	recs, err = ReadAll(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, recs)

	recs, err = ReadAll(strings.NewReader("only,a,header\n"))
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestReaderReportsLineNumber(t *testing.T) {
	input := testInput + "host1,2020-01-01T00:00:00\n"
	r := NewReader(strings.NewReader(input))

	for i := 0; i < 3; i++ {
		_, err := r.Next()
		require.NoError(t, err)
	}

	_, err := r.Next()
	var fmtErr *loadgen.InputFormatError
	require.True(t, errors.As(err, &fmtErr))
	require.Equal(t, 5, fmtErr.Line)
	require.Equal(t, 2, fmtErr.Fields)
	require.Equal(t, 5, r.LineNo())

	_, err = r.Next()
	require.Equal(t, io.EOF, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "queries.csv")
	require.NoError(t, os.WriteFile(plain, []byte(testInput), 0644))

	compressed := filepath.Join(dir, "queries.csv.gz")
	f, err := os.Create(compressed)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(testInput))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, compressed} {
		rd, err := Open(path)
		require.NoError(t, err)
		recs, err := ReadAll(rd)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		require.NoError(t, rd.Close())
	}

	_, err = Open(filepath.Join(dir, "missing.csv"))
	var cfgErr *loadgen.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.True(t, os.IsNotExist(errors.Unwrap(err)))
}

func TestFilesysShardStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesysShardStore(t.TempDir())
	require.NoError(t, err)

	shard := loadgen.Shard{
		Index: 3,
		Records: []loadgen.QueryRecord{
			{Key: "a", RangeStart: "s1", RangeEnd: "e1"},
			{Key: "a", RangeStart: "s2", RangeEnd: "e2"},
		},
	}

	key := store.Join("run", ShardKey(shard.Index))
	require.True(t, strings.HasSuffix(key, filepath.Join("run", "shard_03.csv")))
	require.NoError(t, store.WriteShard(ctx, key, shard))

	recs, err := store.ReadShard(ctx, key)
	require.NoError(t, err)
	require.Equal(t, shard.Records, recs)

	_, err = store.ReadShard(ctx, "nope.csv")
	require.Equal(t, loadgen.ErrShardDoesntExist, err)
}
