package keyspace

import (
	"testing"
	"time"

	"github.com/kaelbridge/tridb/internal/value"
)

func TestSetGetDel(t *testing.T) {
	s := New()
	s.Set("k", value.Str("v"))

	if got := s.Get("k"); got.Str != "v" {
		t.Error("unexpected value:", got)
	}

	if !s.Del("k") {
		t.Error("expected Del to report true for an existing key")
	}
	if s.Del("k") {
		t.Error("expected a second Del to report false")
	}
	if got := s.Get("k"); !got.IsNull() {
		t.Error("expected Get to return Null after Del")
	}
}

func TestSetExExpiresLazily(t *testing.T) {
	s := New()
	s.SetEx("k", value.Str("v"), -1)

	if got := s.Get("k"); !got.IsNull() {
		t.Error("expected an already-past TTL to expire on read")
	}
	if ttl := s.TTL("k"); ttl != -2 {
		t.Errorf("expected TTL -2 for missing/expired key, got %d", ttl)
	}
}

func TestTTLNoExpiry(t *testing.T) {
	s := New()
	s.Set("k", value.Str("v"))
	if ttl := s.TTL("k"); ttl != -1 {
		t.Errorf("expected TTL -1 for a key with no expiry, got %d", ttl)
	}
}

func TestTTLPositive(t *testing.T) {
	s := New()
	s.SetEx("k", value.Str("v"), 60)
	ttl := s.TTL("k")
	if ttl <= 0 || ttl > 60 {
		t.Errorf("expected TTL in (0, 60], got %d", ttl)
	}
}

func TestIncrDecr(t *testing.T) {
	s := New()
	n, err := s.Incr("counter", 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1, got %d", n)
	}

	n, err = s.Incr("counter", 5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("expected 6, got %d", n)
	}

	n, err = s.Incr("counter", -2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4, got %d", n)
	}
}

func TestIncrWrongType(t *testing.T) {
	s := New()
	s.Set("k", value.Str("not a number"))
	if _, err := s.Incr("k", 1); err == nil {
		t.Error("expected Incr on a non-numeric string to fail")
	}
}

func TestIncrPreservesTTL(t *testing.T) {
	s := New()
	s.SetEx("k", value.Int(1), 60)
	s.Incr("k", 1)
	if ttl := s.TTL("k"); ttl <= 0 {
		t.Error("expected Incr to preserve the existing TTL")
	}
}

func TestListOps(t *testing.T) {
	s := New()
	n, err := s.RPush("list", "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected length 2, got %d", n)
	}

	n, err = s.LPush("list", "x", "y")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected length 4, got %d", n)
	}

	items, err := s.LRange("list", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"y", "x", "a", "b"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, w := range want {
		if items[i].Str != w {
			t.Errorf("item %d: expected %q, got %q", i, w, items[i].Str)
		}
	}
}

func TestListPop(t *testing.T) {
	s := New()
	s.RPush("list", "a", "b", "c")

	popped, err := s.LPop("list", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(popped) != 1 || popped[0].Str != "a" {
		t.Errorf("unexpected LPop result: %v", popped)
	}

	popped, err = s.RPop("list", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(popped) != 2 || popped[0].Str != "c" || popped[1].Str != "b" {
		t.Errorf("unexpected RPop result (expected tail-first order): %v", popped)
	}
}

func TestSetOps(t *testing.T) {
	s := New()
	n, err := s.SAdd("set", "a", "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 newly-added members, got %d", n)
	}

	members, err := s.SMembers("set")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Errorf("expected 2 members, got %d", len(members))
	}
}

func TestHashOps(t *testing.T) {
	s := New()
	if err := s.HSet("h", "f1", "v1"); err != nil {
		t.Fatal(err)
	}
	s.HSet("h", "f2", "v2")

	v, ok, err := s.HGet("h", "f1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != "v1" {
		t.Errorf("unexpected HGet result: %q, %v", v, ok)
	}

	all, err := s.HGetAll("h")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["f1"] != "v1" || all["f2"] != "v2" {
		t.Errorf("unexpected HGetAll result: %v", all)
	}
}

func TestZSetOps(t *testing.T) {
	s := New()
	s.ZAdd("z", "a", 3)
	s.ZAdd("z", "b", 1)
	s.ZAdd("z", "c", 2)
	s.ZAdd("z", "a", 0) // update existing member's score

	members, err := s.ZRange("z", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	for i, w := range want {
		if members[i].Member != w {
			t.Errorf("member %d: expected %q, got %q", i, w, members[i].Member)
		}
	}

	score, ok, err := s.ZScore("z", "b")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || score != 1 {
		t.Errorf("unexpected ZScore result: %v, %v", score, ok)
	}
}

func TestWrongTypeAcrossKinds(t *testing.T) {
	s := New()
	s.Set("k", value.Str("plain string"))

	if _, err := s.SAdd("k", "m"); err == nil {
		t.Error("expected SAdd against a string key to fail")
	}
	if _, err := s.LPush("k", "m"); err == nil {
		t.Error("expected LPush against a string key to fail")
	}
	if err := s.HSet("k", "f", "v"); err == nil {
		t.Error("expected HSet against a string key to fail")
	}
}

func TestSweepReapsExpiredOnly(t *testing.T) {
	s := New()
	s.SetEx("expired", value.Str("v"), -1)
	s.Set("alive", value.Str("v"))

	reaped := s.Sweep(1000)
	if reaped != 1 {
		t.Errorf("expected 1 reaped key, got %d", reaped)
	}
	if got := s.Get("alive"); got.IsNull() {
		t.Error("expected the live key to survive the sweep")
	}
}

func TestSnapshotKeyUndo(t *testing.T) {
	s := New()
	s.Set("k", value.Str("original"))

	undo := s.SnapshotKey("k")
	s.Set("k", value.Str("changed"))
	undo()

	if got := s.Get("k"); got.Str != "original" {
		t.Errorf("expected undo to restore original value, got %q", got.Str)
	}
}

func TestSnapshotKeyUndoRestoresAbsence(t *testing.T) {
	s := New()
	undo := s.SnapshotKey("never-set")
	s.Set("never-set", value.Str("now set"))
	undo()

	if got := s.Get("never-set"); !got.IsNull() {
		t.Error("expected undo to remove a key that didn't exist before the snapshot")
	}
}

func TestDumpRestoreRoundTrip(t *testing.T) {
	s := New()
	s.Set("a", value.Str("1"))
	s.SetEx("b", value.Str("2"), 3600)

	dump := s.Dump()
	if len(dump) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(dump))
	}

	restored := New()
	restored.Restore(dump)

	if got := restored.Get("a"); got.Str != "1" {
		t.Error("expected restored plain key to round-trip")
	}
	if ttl := restored.TTL("b"); ttl <= 0 {
		t.Error("expected restored TTL to carry over")
	}
}

func TestKeysSkipsExpired(t *testing.T) {
	s := New()
	s.Set("alive", value.Str("v"))
	s.SetEx("dead", value.Str("v"), -1)

	keys := s.Keys()
	if len(keys) != 1 || keys[0] != "alive" {
		t.Errorf("expected Keys to list only the live key, got %v", keys)
	}
}

func TestExpiredHelper(t *testing.T) {
	now := time.Now()
	e := entry{expireAt: now.Add(-time.Second)}
	if !expired(e, now) {
		t.Error("expected a past expireAt to be expired")
	}
	e2 := entry{}
	if expired(e2, now) {
		t.Error("expected a zero expireAt to mean no expiry")
	}
}
