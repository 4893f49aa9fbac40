// Package keyspace implements the flexible store: the string/list/set/hash/
// sorted-set/JSON keyspace of a database, sharded for fine-grained
// concurrency per the design's concurrency model.
package keyspace

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/kaelbridge/tridb/internal/corerr"
	"github.com/kaelbridge/tridb/internal/value"
)

// shardCount is the number of independent sub-maps the store is split
// into; readers of distinct shards proceed in parallel.
const shardCount = 32

type entry struct {
	val      value.Value
	expireAt time.Time // zero value means no expiry
}

type shard struct {
	mu   sync.Mutex
	data map[string]entry
}

// Store is the sharded, TTL-aware flexible keyspace for one database.
type Store struct {
	shards [shardCount]*shard
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string]entry)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func expired(e entry, now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// Get returns the value stored at key, or value.Null() if the key is
// missing or has lazily expired.
func (s *Store) Get(key string) value.Value {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	if !ok {
		return value.Null()
	}
	if expired(e, time.Now()) {
		delete(sh.data, key)
		return value.Null()
	}
	return e.val
}

// Set stores v at key, clearing any existing TTL.
func (s *Store) Set(key string, v value.Value) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.data[key] = entry{val: v}
}

// SetEx stores v at key with an expiry ttlSeconds from now.
func (s *Store) SetEx(key string, v value.Value, ttlSeconds int64) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.data[key] = entry{val: v, expireAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
}

// Del removes key, reporting whether it was present (and live).
func (s *Store) Del(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	if !ok {
		return false
	}
	delete(sh.data, key)
	return !expired(e, time.Now())
}

// TTL returns remaining seconds for key's expiry, -1 if no expiry is set,
// or -2 if the key is missing/expired.
func (s *Store) TTL(key string) int64 {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	if !ok {
		return -2
	}
	now := time.Now()
	if expired(e, now) {
		delete(sh.data, key)
		return -2
	}
	if e.expireAt.IsZero() {
		return -1
	}
	remaining := int64(e.expireAt.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Incr adds delta to the Int64-coercible value at key (default 0) and
// stores + returns the result. Fails with corerr.ErrTypeMismatch if the
// existing value cannot be coerced to an integer.
func (s *Store) Incr(key string, delta int64) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	var cur value.Value
	if ok && !expired(e, time.Now()) {
		cur = e.val
	} else {
		cur = value.Int(0)
		e = entry{}
	}

	coerced, err := value.Coerce(cur, value.KindInt64)
	if err != nil {
		return 0, err
	}

	next := coerced.Int64 + delta
	sh.data[key] = entry{val: value.Int(next), expireAt: e.expireAt}
	return next, nil
}

// Keys returns a snapshot of all live keys, used by AOF rewrite. Expired
// entries are skipped but not reaped.
func (s *Store) Keys() []string {
	now := time.Now()
	var keys []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.data {
			if !expired(e, now) {
				keys = append(keys, k)
			}
		}
		sh.mu.Unlock()
	}
	return keys
}

// Sweep visits up to maxVisit entries, starting from shards in random
// order, and reaps the expired ones among them: the bounded periodic sweep named in the design's supplemented
// features so that TTLs are reclaimed even on idle keys nobody reads.
func (s *Store) Sweep(maxVisit int) (reaped int) {
	now := time.Now()
	order := rand.Perm(shardCount)
	for _, idx := range order {
		sh := s.shards[idx]
		sh.mu.Lock()
		visited := 0
		for k, e := range sh.data {
			if visited >= maxVisit {
				break
			}
			visited++
			if expired(e, now) {
				delete(sh.data, k)
				reaped++
			}
		}
		sh.mu.Unlock()
		maxVisit -= visited
		if maxVisit <= 0 {
			break
		}
	}
	return reaped
}

// SnapshotKey captures key's current entry (its value and TTL, or its
// absence) and returns an undo closure that restores exactly that state.
// Callers use this to make a flexible-store write reversible the same way
// internal/relational's row mutators are: snapshot before, undo on a
// transaction's failed COMMIT.
func (s *Store) SnapshotKey(key string) func() {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, existed := sh.data[key]
	if existed {
		e.val = value.Clone(e.val)
	}
	sh.mu.Unlock()

	return func() {
		sh.mu.Lock()
		defer sh.mu.Unlock()
		if existed {
			sh.data[key] = e
		} else {
			delete(sh.data, key)
		}
	}
}

// Entry is a key's value plus its remaining TTL, the unit a snapshot/AOF
// restore operates on.
type Entry struct {
	Value      value.Value
	TTLSeconds int64 // 0 means no expiry
}

// Dump captures every live key's current value and remaining TTL, used by
// snapshot save.
func (s *Store) Dump() map[string]Entry {
	now := time.Now()
	out := map[string]Entry{}
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.data {
			if expired(e, now) {
				continue
			}
			ent := Entry{Value: e.val}
			if !e.expireAt.IsZero() {
				remaining := int64(e.expireAt.Sub(now).Seconds())
				if remaining < 0 {
					remaining = 0
				}
				ent.TTLSeconds = remaining
			}
			out[k] = ent
		}
		sh.mu.Unlock()
	}
	return out
}

// Restore repopulates the store from a prior Dump; snapshot load uses it on
// startup, before any AOF replay.
func (s *Store) Restore(entries map[string]Entry) {
	for k, e := range entries {
		if e.TTLSeconds > 0 {
			s.SetEx(k, e.Value, e.TTLSeconds)
		} else {
			s.Set(k, e.Value)
		}
	}
}

// mutate runs fn against the current live value at key (value.Null() if
// absent) under the shard lock and stores the result, preserving any
// existing TTL. fn returns the new value, or an error that leaves the key
// unchanged.
func (s *Store) mutate(key string, fn func(cur value.Value) (value.Value, error)) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.data[key]
	var cur value.Value
	if ok && !expired(e, time.Now()) {
		cur = e.val
	} else {
		cur = value.Null()
		e = entry{}
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	sh.data[key] = entry{val: next, expireAt: e.expireAt}
	return nil
}

func wrongType(key string, want value.Kind, got value.Value) error {
	return corerr.Wrap(corerr.ErrTypeMismatch, "key %q holds a %s, not a %s", key, got.Kind, want)
}
