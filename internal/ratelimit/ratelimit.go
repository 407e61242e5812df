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

// Package ratelimit enforces the per-sender daily print quota. Counts are
// kept behind an injectable Store so the same Limiter works against
// process memory (single instance) or Redis (shared across replicas).
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store persists daily print counts keyed by sender+day. Increment must
// be atomic; Count is a plain read. Records expire after ttl so stale
// days clean themselves up.
type Store interface {
	// Count returns the current count for the key (0 if absent).
	Count(ctx context.Context, key string) (int, error)

	// Increment adds one to the key's count, creating the record with
	// the given ttl on first write, and returns the new count.
	Increment(ctx context.Context, key string, ttl time.Duration) (int, error)
}

// Decision is the result of a quota check.
type Decision struct {
	Allowed   bool
	Remaining int
}

// Limiter applies a daily print ceiling per sender.
type Limiter struct {
	store Store
	limit int
}

// NewLimiter creates a limiter with the given daily ceiling.
func NewLimiter(store Store, dailyLimit int) *Limiter {
	return &Limiter{store: store, limit: dailyLimit}
}

// dayKey builds the store key for a sender on the calendar day of now.
// Day boundaries are UTC: the source of truth must not depend on the
// host timezone of whichever replica handles the request.
func dayKey(sender string, now time.Time) string {
	return fmt.Sprintf("prints:%s:%s", now.UTC().Format("2006-01-02"), sender)
}

// recordTTL is how long a day record is kept. A day plus an hour of
// grace covers requests racing the midnight boundary.
const recordTTL = 25 * time.Hour

// Check reports whether the sender may print now and how many prints
// remain today. It does not consume quota — call Increment after a
// successful dispatch.
func (l *Limiter) Check(ctx context.Context, sender string, now time.Time) (Decision, error) {
	count, err := l.store.Count(ctx, dayKey(sender, now))
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit count: %w", err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count < l.limit,
		Remaining: remaining,
	}, nil
}

// Increment consumes one print from the sender's daily quota. Only call
// this after the printer accepted the job — rejected requests never
// count against the sender.
func (l *Limiter) Increment(ctx context.Context, sender string, now time.Time) error {
	if _, err := l.store.Increment(ctx, dayKey(sender, now), recordTTL); err != nil {
		return fmt.Errorf("rate limit increment: %w", err)
	}
	return nil
}

// Limit returns the configured daily ceiling.
func (l *Limiter) Limit() int { return l.limit }
