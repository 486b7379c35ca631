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

package partition

import (
	"encoding/binary"

	"github.com/dolthub/dolt/go/store/hash"
	"go.uber.org/zap"

	"github.com/dolthub/querybench/go/bench/pkg/loadgen"
)

// Strategy selects how keys are assigned to shards
type Strategy string

const (
	// RoundRobin assigns each newly seen key to the next shard, wrapping around after the last one. Assignment depends
	// on the order in which keys first appear in the input.
	RoundRobin Strategy = "round-robin"
	// Hash assigns a key to the shard given by its hash modulo the number of workers. Assignment depends only on the key.
	Hash Strategy = "hash"
)

// ParseStrategy returns the Strategy with the given name
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case RoundRobin, Hash:
		return Strategy(s), nil
	}

	return "", loadgen.NewConfigurationError("unknown sharding strategy '%s'. Supported options: '%s', '%s'", s, RoundRobin, Hash)
}

// ValidateWorkers checks that the number of workers is within [1, loadgen.MaxWorkers]
func ValidateWorkers(workers int) error {
	if workers < 1 || workers > loadgen.MaxWorkers {
		return loadgen.NewConfigurationError("invalid number of workers: %d. must be between 1 and %d", workers, loadgen.MaxWorkers)
	}

	return nil
}

// Partitioner assigns records to shards such that all records for a key land in the same shard
type Partitioner struct {
	logger   *zap.Logger
	workers  int
	strategy Strategy

	keyToShard map[string]int
	nextShard  int
	shards     [][]loadgen.QueryRecord
}

// New returns a Partitioner for the given number of workers. The worker count is validated before any records are added.
func New(workers int, strategy Strategy, logger *zap.Logger) (*Partitioner, error) {
	if err := ValidateWorkers(workers); err != nil {
		return nil, err
	}

	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	return &Partitioner{
		logger:     logger,
		workers:    workers,
		strategy:   strategy,
		keyToShard: make(map[string]int),
		shards:     make([][]loadgen.QueryRecord, workers),
	}, nil
}

// Add assigns rec to a shard and returns the shard's index
func (p *Partitioner) Add(rec loadgen.QueryRecord) int {
	slot := p.ShardFor(rec.Key)

	if ce := p.logger.Check(zap.DebugLevel, "adding to slot"); ce != nil {
		ce.Write(zap.Int("slot", slot), zap.String("key", rec.Key), zap.String("start", rec.RangeStart), zap.String("end", rec.RangeEnd))
	}

	p.shards[slot] = append(p.shards[slot], rec)
	return slot
}

// ShardFor returns the shard index for key, assigning one if the key has not been seen before
func (p *Partitioner) ShardFor(key string) int {
	if p.strategy == Hash {
		return HashShard(key, p.workers)
	}

	if slot, ok := p.keyToShard[key]; ok {
		return slot
	}

	slot := p.nextShard
	p.nextShard = (p.nextShard + 1) % p.workers
	p.keyToShard[key] = slot

	return slot
}

// HashShard returns the shard for key when sharding by hash
func HashShard(key string, workers int) int {
	h := hash.Of([]byte(key))
	return int(binary.BigEndian.Uint64(h[:8]) % uint64(workers))
}

// Shards returns the non-empty shards in ascending order of index
func (p *Partitioner) Shards() []loadgen.Shard {
	shards := make([]loadgen.Shard, 0, p.workers)
	for i, recs := range p.shards {
		if len(recs) == 0 {
			continue
		}

		shards = append(shards, loadgen.Shard{Index: i, Records: recs})
	}

	return shards
}

// Partition assigns every record to a shard and returns the non-empty shards
func Partition(recs []loadgen.QueryRecord, workers int, strategy Strategy, logger *zap.Logger) ([]loadgen.Shard, error) {
	p, err := New(workers, strategy, logger)
	if err != nil {
		return nil, err
	}

	for _, rec := range recs {
		p.Add(rec)
	}

	return p.Shards(), nil
}
