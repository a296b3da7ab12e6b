/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	redlock "github.com/blnkfinance/payrecon/internal/lock"
	redis_db "github.com/blnkfinance/payrecon/internal/redis-db"
)

const (
	redisKeyPrefix  = "payrecon:blob:"
	redisLockPrefix = "payrecon:lock:"
	lockTimeout     = 5 * time.Second
	lockWait        = 2 * time.Second
)

// RedisStore keeps blobs as plain Redis strings. Writers serialize through a
// short-lived distributed lock so two bot processes never interleave saves.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(dns string, skipTLSVerify bool) (*RedisStore, error) {
	r, err := redis_db.NewRedisClient([]string{dns}, skipTLSVerify)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return NewRedisStoreWithClient(r.Client()), nil
}

func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) LoadBlob(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "loading blob %s", key)
	}
	return data, nil
}

func (r *RedisStore) SaveBlob(ctx context.Context, key string, payload []byte) error {
	locker := redlock.NewLocker(r.client, redisLockPrefix+key, uuid.NewString())
	if err := locker.WaitLock(ctx, lockTimeout, lockWait); err != nil {
		return errors.Wrapf(err, "saving blob %s", key)
	}
	defer func() {
		_ = locker.Unlock(context.Background())
	}()

	if err := r.client.Set(ctx, redisKeyPrefix+key, payload, 0).Err(); err != nil {
		return errors.Wrapf(err, "saving blob %s", key)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
