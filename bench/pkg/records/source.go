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
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

// StdinPath selects standard input when passed to Open
const StdinPath = "-"

// Open opens the input source at path. An empty path or StdinPath selects standard input, which is never closed. Files
// with a .gz extension are decompressed while reading.
func Open(path string) (io.ReadCloser, error) {
	if path == "" || path == StdinPath {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &loadgen.ConfigurationError{Msg: "cannot open input file " + path, Err: err}
	}

	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, &loadgen.ConfigurationError{Msg: "cannot read gzip input file " + path, Err: err}
	}

	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	zErr := g.Reader.Close()
	fErr := g.f.Close()
	if zErr != nil {
		return zErr
	}

	return fErr
}
