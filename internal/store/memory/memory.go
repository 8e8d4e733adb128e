// Package memory implements store.Store in process memory.
//
// Items are kept in their encoded field-map form, so every Get decodes a
// private copy and the codec sees exactly what a durable backend would.
// Both the data and the writer locks are split into shards keyed by an FNV
// hash of the token; writers of different events never contend on one lock.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/liveqa/internal/codec"
	"github.com/alfredjeanlab/liveqa/internal/model"
	"github.com/alfredjeanlab/liveqa/internal/store"
)

const shardCount = 64

type item struct {
	version uint64
	ttl     *int64
	data    *structpb.Struct
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*item
}

// Store is an in-memory store.Store that also implements store.KeyLocker.
type Store struct {
	shards [shardCount]shard
	locks  [shardCount]sync.Mutex
	now    func() time.Time
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.KeyLocker = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	s := &Store{now: time.Now}
	for i := range s.shards {
		s.shards[i].items = make(map[string]*item)
	}
	return s
}

func shardIndex(token string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(token))
	return h.Sum32() % shardCount
}

func (s *Store) shard(token string) *shard {
	return &s.shards[shardIndex(token)]
}

// LockKey serializes writers of token within this process.
func (s *Store) LockKey(token string) func() {
	mu := &s.locks[shardIndex(token)]
	mu.Lock()
	return mu.Unlock
}

// Get returns a decoded copy of the live record for token.
func (s *Store) Get(_ context.Context, token string) (*model.Record, error) {
	sh := s.shard(token)
	sh.mu.RLock()
	it, ok := sh.items[token]
	sh.mu.RUnlock()
	if !ok || store.Expired(it.ttl, s.now()) {
		return nil, store.ErrNotFound
	}
	return codec.Decode(it.data)
}

// Put writes rec if its version follows the stored one.
func (s *Store) Put(_ context.Context, rec *model.Record) error {
	data, err := codec.Encode(rec)
	if err != nil {
		return err
	}
	token := rec.Token()
	now := s.now()

	sh := s.shard(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.items[token]
	if ok && store.Expired(cur.ttl, now) {
		ok = false
	}
	switch {
	case rec.Version == 0 && ok:
		return store.ErrExists
	case rec.Version > 0 && !ok:
		return store.ErrNotFound
	case rec.Version > 0 && cur.version != rec.Version-1:
		return store.ErrConcurrency
	}
	sh.items[token] = &item{version: rec.Version, ttl: rec.TTL, data: data}
	return nil
}

// PurgeExpired drops every item whose TTL has passed and reports how many
// were removed.
func (s *Store) PurgeExpired(_ context.Context) (int64, error) {
	now := s.now()
	var n int64
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, it := range sh.items {
			if store.Expired(it.ttl, now) {
				delete(sh.items, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n, nil
}

// Len returns the number of stored items, live or not.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
