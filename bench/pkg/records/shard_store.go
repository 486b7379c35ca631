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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

// ensure *FilesysShardStore implements loadgen.ShardStore
var _ loadgen.ShardStore = (*FilesysShardStore)(nil)

// FilesysShardStore is a loadgen.ShardStore implementation that reads from and writes to the local file system. Shards
// are written in the same format that is read as input, so a persisted shard can be replayed on its own.
type FilesysShardStore struct {
	rootDir string
}

// NewFilesysShardStore returns a new FilesysShardStore object
func NewFilesysShardStore(rootDir string) (*FilesysShardStore, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}

	return &FilesysShardStore{
		rootDir: absRoot,
	}, nil
}

// ShardKey returns the key a shard is persisted under
func ShardKey(shardIdx int) string {
	return fmt.Sprintf("shard_%02d.csv", shardIdx)
}

// WriteShard persists the shard's records as a header line followed by one line per record
func (f *FilesysShardStore) WriteShard(ctx context.Context, key string, shard loadgen.Shard) error {
	absPath := f.Join(key)

	dir := filepath.Dir(absPath)
	err := os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return err
	}

	file, err := os.Create(absPath)
	if err != nil {
		return err
	}
	defer file.Close()

	wr := bufio.NewWriter(file)
	if _, err = wr.WriteString(Header + "\n"); err != nil {
		return err
	}

	for _, rec := range shard.Records {
		if err = ctx.Err(); err != nil {
			return err
		}

		if _, err = wr.WriteString(FormatLine(rec) + "\n"); err != nil {
			return err
		}
	}

	if err = wr.Flush(); err != nil {
		return err
	}

	return file.Close()
}

// ReadShard reads the records of a persisted shard
func (f *FilesysShardStore) ReadShard(ctx context.Context, key string) ([]loadgen.QueryRecord, error) {
	absPath := f.Join(key)

	file, err := os.Open(absPath)
	if os.IsNotExist(err) {
		return nil, loadgen.ErrShardDoesntExist
	} else if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadAll(file)
}

// Join joins key elements into a single key with delimiters that are appropriate for the backing storage.  In this case
// it uses the filesys appropriate file separator.
func (f *FilesysShardStore) Join(keyElements ...string) string {
	path := filepath.Join(keyElements...)

	if !filepath.IsAbs(path) {
		return filepath.Join(f.rootDir, path)
	}

	return path
}
