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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces quota keys in Redis.
const keyPrefix = "printy:quota:"

// RedisStore is a Redis-backed Store. Expiry is TTL-native, so no sweep
// is needed, and INCR makes Increment atomic across replicas.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a quota store backed by Redis.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Count implements Store.
func (r *RedisStore) Count(ctx context.Context, key string) (int, error) {
	n, err := r.rdb.Get(ctx, keyPrefix+key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota GET: %w", err)
	}
	return n, nil
}

// Increment implements Store. The TTL is attached on first write only —
// later increments within the day must not push the expiry forward.
func (r *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	full := keyPrefix + key

	n, err := r.rdb.Incr(ctx, full).Result()
	if err != nil {
		return 0, fmt.Errorf("quota INCR: %w", err)
	}
	if n == 1 {
		if err := r.rdb.Expire(ctx, full, ttl).Err(); err != nil {
			return int(n), fmt.Errorf("quota EXPIRE: %w", err)
		}
	}
	return int(n), nil
}
