package ratelimiter

import (
	"testing"
	"time"
)

func allow(l *MapLimiter, key string, now time.Time) bool {
	ok, _ := l.Reserve(key, now)
	return ok
}

func buckets(l *MapLimiter) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byKey)
}

func TestMapLimiterBurstThenThrottle(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if !allow(l, "internet-identity", now) || !allow(l, "internet-identity", now) {
		t.Fatal("burst of two must be allowed")
	}
	ok, delay := l.Reserve("internet-identity", now)
	if ok {
		t.Fatal("third attempt in the same instant must be throttled")
	}
	if delay <= 0 || delay > time.Second {
		t.Fatalf("unexpected retry delay: %s", delay)
	}
	if !allow(l, "internet-identity", now.Add(time.Second)) {
		t.Fatal("token must refill after one second")
	}
}

func TestMapLimiterKeysAreIndependent(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if !allow(l, "a", now) {
		t.Fatal("first key must be allowed")
	}
	if !allow(l, "b", now) {
		t.Fatal("second key must have its own bucket")
	}
	if allow(l, "a", now) {
		t.Fatal("first key must be exhausted")
	}
	l.Forget(" a ")
	if !allow(l, "a", now) {
		t.Fatal("forgotten key must start with a full bucket")
	}
	if allow(l, "b", now) {
		t.Fatal("forgetting one key must not refill another")
	}
}

func TestMapLimiterNilAndBlankKeyAllow(t *testing.T) {
	var l *MapLimiter
	if !allow(l, "x", time.Now()) {
		t.Fatal("nil limiter must allow")
	}
	l.Forget("x")
	if New(0, 1, 0) != nil {
		t.Fatal("non-positive rate must yield nil limiter")
	}
	live := New(1, 1, 0)
	for i := 0; i < 3; i++ {
		if !allow(live, "  ", time.Now()) {
			t.Fatal("blank key must not be limited")
		}
	}
	if n := buckets(live); n != 0 {
		t.Fatalf("blank key must not allocate a bucket, got %d", n)
	}
}

func TestMapLimiterEvictsIdleBuckets(t *testing.T) {
	l := New(100, 100, time.Second)
	start := time.Unix(1_700_000_000, 0)
	allow(l, "idle", start)
	later := start.Add(time.Minute)
	for i := 0; i < sweepEvery; i++ {
		allow(l, "busy", later)
	}
	if n := buckets(l); n != 1 {
		t.Fatalf("idle bucket must be evicted, have %d buckets", n)
	}
}
