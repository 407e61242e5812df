// Copyright (c) 2026 John Earle
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

package ratelimit

import (
	"context"
	"testing"
	"time"
)

// TestCheckExhaustsAtLimit verifies the quota flips to denied exactly
// after the configured number of successful prints.
func TestCheckExhaustsAtLimit(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(NewMemoryStore(), 3)
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d, err := limiter.Check(ctx, "a@x.com", now)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
		if d.Remaining != 3-i {
			t.Errorf("check %d: remaining = %d, want %d", i, d.Remaining, 3-i)
		}
		if err := limiter.Increment(ctx, "a@x.com", now); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	d, err := limiter.Check(ctx, "a@x.com", now)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Error("expected denied after limit reached")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
}

// TestCheckWithoutIncrementNeverExhausts verifies that checks alone do
// not consume quota — only dispatched prints count.
func TestCheckWithoutIncrementNeverExhausts(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(NewMemoryStore(), 2)
	now := time.Now()

	for i := 0; i < 10; i++ {
		d, err := limiter.Check(ctx, "b@x.com", now)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Remaining != 2 {
			t.Fatalf("check %d: allowed=%v remaining=%d, want allowed with 2", i, d.Allowed, d.Remaining)
		}
	}
}

// TestSendersAreIndependent verifies one sender exhausting their quota
// does not affect another.
func TestSendersAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(NewMemoryStore(), 1)
	now := time.Now()

	if err := limiter.Increment(ctx, "a@x.com", now); err != nil {
		t.Fatal(err)
	}

	d, err := limiter.Check(ctx, "b@x.com", now)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("unrelated sender should still be allowed")
	}
}

// TestDayBoundaryResetsQuota verifies the UTC calendar day partitions
// counts.
func TestDayBoundaryResetsQuota(t *testing.T) {
	ctx := context.Background()
	limiter := NewLimiter(NewMemoryStore(), 1)

	today := time.Date(2026, 2, 10, 23, 50, 0, 0, time.UTC)
	tomorrow := time.Date(2026, 2, 11, 0, 5, 0, 0, time.UTC)

	if err := limiter.Increment(ctx, "a@x.com", today); err != nil {
		t.Fatal(err)
	}

	d, err := limiter.Check(ctx, "a@x.com", today)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Error("expected denied on the same day")
	}

	d, err = limiter.Check(ctx, "a@x.com", tomorrow)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("expected allowed after the day boundary")
	}
}

// TestDayKeyIsUTC verifies the day component comes from UTC regardless
// of the wall clock's zone.
func TestDayKeyIsUTC(t *testing.T) {
	// 23:00 in UTC-5 is 04:00 the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 2, 10, 23, 0, 0, 0, loc)

	got := dayKey("a@x.com", local)
	want := "prints:2026-02-11:a@x.com"
	if got != want {
		t.Errorf("dayKey = %q, want %q", got, want)
	}
}

// TestSweepRemovesExpiredRecords verifies expired records are dropped
// and live ones survive.
func TestSweepRemovesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Increment(ctx, "old", 1*time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Increment(ctx, "fresh", 48*time.Hour); err != nil {
		t.Fatal(err)
	}

	removed := store.Sweep(time.Now().Add(2 * time.Hour))
	if removed != 1 {
		t.Fatalf("sweep removed %d records, want 1", removed)
	}

	n, err := store.Count(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("fresh count = %d, want 1", n)
	}
}

// TestExpiredRecordCountsAsAbsent verifies Count honours expiry even
// before a sweep runs.
func TestExpiredRecordCountsAsAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Increment(ctx, "k", -time.Second); err != nil {
		t.Fatal(err)
	}

	n, err := store.Count(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0 for expired record", n)
	}
}
