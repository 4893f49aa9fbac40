package keyspace

import (
	"github.com/kaelbridge/tridb/internal/value"
)

// LPush prepends members to the list at key, creating it if absent.
func (s *Store) LPush(key string, members ...string) (int, error) {
	var length int
	err := s.mutate(key, func(cur value.Value) (value.Value, error) {
		list, err := asList(key, cur)
		if err != nil {
			return cur, err
		}
		prefix := make([]value.Value, len(members))
		for i, m := range members {
			// LPUSH k a b pushes a then b, each at the head, so b ends up
			// first: prepend in reverse input order.
			prefix[len(members)-1-i] = value.Str(m)
		}
		list.List = append(prefix, list.List...)
		length = len(list.List)
		return list, nil
	})
	return length, err
}

// RPush appends members to the list at key, creating it if absent.
func (s *Store) RPush(key string, members ...string) (int, error) {
	var length int
	err := s.mutate(key, func(cur value.Value) (value.Value, error) {
		list, err := asList(key, cur)
		if err != nil {
			return cur, err
		}
		for _, m := range members {
			list.List = append(list.List, value.Str(m))
		}
		length = len(list.List)
		return list, nil
	})
	return length, err
}

// LPop removes and returns up to count elements from the head of the list.
func (s *Store) LPop(key string, count int) ([]value.Value, error) {
	var popped []value.Value
	err := s.mutate(key, func(cur value.Value) (value.Value, error) {
		list, err := asList(key, cur)
		if err != nil {
			return cur, err
		}
		n := count
		if n > len(list.List) {
			n = len(list.List)
		}
		popped = append([]value.Value{}, list.List[:n]...)
		list.List = list.List[n:]
		return list, nil
	})
	return popped, err
}

// RPop removes and returns up to count elements from the tail of the list.
func (s *Store) RPop(key string, count int) ([]value.Value, error) {
	var popped []value.Value
	err := s.mutate(key, func(cur value.Value) (value.Value, error) {
		list, err := asList(key, cur)
		if err != nil {
			return cur, err
		}
		n := count
		if n > len(list.List) {
			n = len(list.List)
		}
		tail := list.List[len(list.List)-n:]
		popped = make([]value.Value, n)
		for i := range tail {
			popped[i] = tail[len(tail)-1-i]
		}
		list.List = list.List[:len(list.List)-n]
		return list, nil
	})
	return popped, err
}

// LRange returns list elements in [start, stop], supporting negative indices
// counted from the end, clamped to the list's bounds.
func (s *Store) LRange(key string, start, stop int) ([]value.Value, error) {
	v := s.Get(key)
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind != value.KindList {
		return nil, wrongType(key, value.KindList, v)
	}
	n := len(v.List)
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if start > stop || start >= n {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}
	out := make([]value.Value, stop-start+1)
	copy(out, v.List[start:stop+1])
	return out, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = n + i
	}
	if i < 0 {
		i = 0
	}
	return i
}

func asList(key string, cur value.Value) (value.Value, error) {
	if cur.IsNull() {
		return value.Value{Kind: value.KindList}, nil
	}
	if cur.Kind != value.KindList {
		return cur, wrongType(key, value.KindList, cur)
	}
	return cur, nil
}

// SAdd adds members to the set at key, creating it if absent. Returns the
// number of members actually added (excluding ones already present).
func (s *Store) SAdd(key string, members ...string) (int, error) {
	var added int
	err := s.mutate(key, func(cur value.Value) (value.Value, error) {
		set, err := asSet(key, cur)
		if err != nil {
			return cur, err
		}
		for _, m := range members {
			if _, exists := set.Set[m]; !exists {
				set.Set[m] = struct{}{}
				added++
			}
		}
		return set, nil
	})
	return added, err
}

// SMembers returns all members of the set at key.
func (s *Store) SMembers(key string) ([]string, error) {
	v := s.Get(key)
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind != value.KindSet {
		return nil, wrongType(key, value.KindSet, v)
	}
	out := make([]string, 0, len(v.Set))
	for m := range v.Set {
		out = append(out, m)
	}
	return out, nil
}

func asSet(key string, cur value.Value) (value.Value, error) {
	if cur.IsNull() {
		return value.Value{Kind: value.KindSet, Set: map[string]struct{}{}}, nil
	}
	if cur.Kind != value.KindSet {
		return cur, wrongType(key, value.KindSet, cur)
	}
	return cur, nil
}

// HSet sets field to val in the hash at key, creating it if absent.
func (s *Store) HSet(key, field, val string) error {
	return s.mutate(key, func(cur value.Value) (value.Value, error) {
		h, err := asHash(key, cur)
		if err != nil {
			return cur, err
		}
		h.Hash[field] = val
		return h, nil
	})
}

// HGet returns the value at field in the hash at key.
func (s *Store) HGet(key, field string) (string, bool, error) {
	v := s.Get(key)
	if v.IsNull() {
		return "", false, nil
	}
	if v.Kind != value.KindHash {
		return "", false, wrongType(key, value.KindHash, v)
	}
	val, ok := v.Hash[field]
	return val, ok, nil
}

// HGetAll returns the full field->value map of the hash at key.
func (s *Store) HGetAll(key string) (map[string]string, error) {
	v := s.Get(key)
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind != value.KindHash {
		return nil, wrongType(key, value.KindHash, v)
	}
	out := make(map[string]string, len(v.Hash))
	for f, val := range v.Hash {
		out[f] = val
	}
	return out, nil
}

func asHash(key string, cur value.Value) (value.Value, error) {
	if cur.IsNull() {
		return value.Value{Kind: value.KindHash, Hash: map[string]string{}}, nil
	}
	if cur.Kind != value.KindHash {
		return cur, wrongType(key, value.KindHash, cur)
	}
	return cur, nil
}

// ZAdd sets member's score in the sorted set at key, creating it if absent,
// and re-sorts by (score, member).
func (s *Store) ZAdd(key, member string, score float64) error {
	return s.mutate(key, func(cur value.Value) (value.Value, error) {
		z, err := asZSet(key, cur)
		if err != nil {
			return cur, err
		}
		replaced := false
		for i := range z.SortedSet {
			if z.SortedSet[i].Member == member {
				z.SortedSet[i].Score = score
				replaced = true
				break
			}
		}
		if !replaced {
			z.SortedSet = append(z.SortedSet, value.ZMember{Member: member, Score: score})
		}
		value.SortSortedSet(z.SortedSet)
		return z, nil
	})
}

// ZRange returns sorted-set members in [start, stop] by rank, negative
// indices counted from the end.
func (s *Store) ZRange(key string, start, stop int) ([]value.ZMember, error) {
	v := s.Get(key)
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind != value.KindSortedSet {
		return nil, wrongType(key, value.KindSortedSet, v)
	}
	n := len(v.SortedSet)
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if start > stop || start >= n {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}
	out := make([]value.ZMember, stop-start+1)
	copy(out, v.SortedSet[start:stop+1])
	return out, nil
}

// ZScore returns member's score in the sorted set at key.
func (s *Store) ZScore(key, member string) (float64, bool, error) {
	v := s.Get(key)
	if v.IsNull() {
		return 0, false, nil
	}
	if v.Kind != value.KindSortedSet {
		return 0, false, wrongType(key, value.KindSortedSet, v)
	}
	for _, m := range v.SortedSet {
		if m.Member == member {
			return m.Score, true, nil
		}
	}
	return 0, false, nil
}

func asZSet(key string, cur value.Value) (value.Value, error) {
	if cur.IsNull() {
		return value.Value{Kind: value.KindSortedSet}, nil
	}
	if cur.Kind != value.KindSortedSet {
		return cur, wrongType(key, value.KindSortedSet, cur)
	}
	return cur, nil
}
