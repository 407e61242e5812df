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
	"log/slog"
	"sync"
	"time"
)

// memoryRecord is a counted key with an explicit expiry. Expiry is a
// timestamp, not a date-substring match: a sender address that happens
// to contain a date can never collide with the sweep.
type memoryRecord struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded in-memory Store. All state is lost on
// restart; that is an accepted property of the quota, not a bug.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

// Count implements Store. Expired records count as absent even before
// the sweep removes them.
func (m *MemoryStore) Count(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok || time.Now().After(rec.expiresAt) {
		return 0, nil
	}
	return rec.count, nil
}

// Increment implements Store.
func (m *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok || time.Now().After(rec.expiresAt) {
		rec = memoryRecord{expiresAt: time.Now().Add(ttl)}
	}
	rec.count++
	m.records[key] = rec
	return rec.count, nil
}

// Sweep removes all expired records and returns how many were dropped.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, rec := range m.records {
		if now.After(rec.expiresAt) {
			delete(m.records, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until the context is
// cancelled.
func (m *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := m.Sweep(time.Now()); removed > 0 {
					slog.Debug("rate limit sweep", "removed", removed)
				}
			}
		}
	}()
}
