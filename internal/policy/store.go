package policy

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/ipd-simulator/pkg/errors"
)

// defaultShardCount spreads entry traffic across independent locks. Keys are
// already hash-mixed, so the low bits select the shard uniformly.
const defaultShardCount = 256

// Store is a size-bounded concurrent map from observation-state key to
// CompactPolicy. Lookups refresh LRU recency; EvictToCapacity trims each shard
// back to its share of the bound and is meant to be called by a single writer
// between steps. Each shard also carries a hard cap at twice its share so an
// extreme step cannot grow the store without bound.
type Store struct {
	shards    []*storeShard
	shardMask uint64
	perShard  int

	evictions atomic.Int64
	inserts   atomic.Int64
}

type storeShard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[uint64, *CompactPolicy]
}

// NewStore creates a store bounded to capacity entries.
func NewStore(capacity int) (*Store, error) {
	if capacity < 1 {
		return nil, errors.Newf(errors.CodeConfigInvalid, "policy store capacity must be >= 1, got %d", capacity)
	}

	// Halve the shard count until each shard holds a useful number of
	// entries; tiny capacities collapse to a single shard.
	shardCount := defaultShardCount
	for shardCount > 1 && capacity/shardCount < 8 {
		shardCount /= 2
	}
	perShard := capacity / shardCount

	s := &Store{
		shards:    make([]*storeShard, shardCount),
		shardMask: uint64(shardCount - 1),
		perShard:  perShard,
	}
	for i := range s.shards {
		lru, err := simplelru.NewLRU[uint64, *CompactPolicy](2*perShard, func(uint64, *CompactPolicy) {
			s.evictions.Add(1)
		})
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfigInvalid, "policy store shard", err)
		}
		s.shards[i] = &storeShard{lru: lru}
	}
	return s, nil
}

func (s *Store) shard(key uint64) *storeShard {
	return s.shards[key&s.shardMask]
}

// LookupOrInsert atomically returns the entry for key, inserting a fresh
// zero-initialized policy if absent. Recency is refreshed either way.
func (s *Store) LookupOrInsert(key uint64) *CompactPolicy {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if p, ok := sh.lru.Get(key); ok {
		return p
	}
	p := &CompactPolicy{}
	sh.lru.Add(key, p)
	s.inserts.Add(1)
	return p
}

// Lookup returns the entry for key without inserting, refreshing recency on a
// hit. Used for next-state max-Q reads during the evaluation pass, where an
// absent state is worth zero.
func (s *Store) Lookup(key uint64) (*CompactPolicy, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lru.Get(key)
}

// EvictToCapacity drops least-recently-used entries until every shard is back
// within its share of the bound. Returns the number of entries dropped.
func (s *Store) EvictToCapacity() int {
	dropped := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for sh.lru.Len() > s.perShard {
			if _, _, ok := sh.lru.RemoveOldest(); !ok {
				break
			}
			dropped++
		}
		sh.mu.Unlock()
	}
	return dropped
}

// Len returns the current number of entries across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += sh.lru.Len()
		sh.mu.Unlock()
	}
	return n
}

// Capacity returns the effective entry bound: the per-shard share times the
// shard count, which can fall short of the configured capacity by less than
// the shard count.
func (s *Store) Capacity() int {
	return s.perShard * len(s.shards)
}

// Evictions returns the total number of evicted entries, the saturation
// diagnostic of the store.
func (s *Store) Evictions() int64 {
	return s.evictions.Load()
}

// Inserts returns the total number of fresh entries created.
func (s *Store) Inserts() int64 {
	return s.inserts.Load()
}
