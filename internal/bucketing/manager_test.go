package bucketing

import (
	"fmt"
	"testing"
	"time"
)

func TestUserBucketStable(t *testing.T) {
	m := NewManager(100)

	first := m.UserBucket("a3c1f0d2-9b7e-4a1b-8f2c-1d5e6f7a8b9c")
	for i := 0; i < 10; i++ {
		if got := m.UserBucket("a3c1f0d2-9b7e-4a1b-8f2c-1d5e6f7a8b9c"); got != first {
			t.Fatalf("bucket changed on repeat call: %d != %d", got, first)
		}
	}
}

func TestUserBucketRange(t *testing.T) {
	m := NewManager(16)

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		b := m.UserBucket(fmt.Sprintf("user-%d", i))
		if b < 0 || b >= 16 {
			t.Fatalf("bucket %d out of range", b)
		}
		seen[b] = true
	}

	// 1000 IDs over 16 buckets should touch most of them
	if len(seen) < 12 {
		t.Errorf("only %d of 16 buckets used", len(seen))
	}
}

func TestDateBucket(t *testing.T) {
	m := NewManager(100)

	at := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	if got := m.DateBucket(at); got != "2025-03-09" {
		t.Errorf("DateBucket = %q, want 2025-03-09", got)
	}
}
