package store

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "orthobox:"

// RedisBackend stores each partition as one Redis hash.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func hashKey(p Partition) string {
	return redisKeyPrefix + string(p)
}

func (s *RedisBackend) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	value, err := s.client.HGet(ctx, hashKey(p), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *RedisBackend) Put(ctx context.Context, p Partition, key string, value []byte) error {
	return s.client.HSet(ctx, hashKey(p), key, value).Err()
}

func (s *RedisBackend) PutIfAbsent(ctx context.Context, p Partition, key string, value []byte) (bool, error) {
	return s.client.HSetNX(ctx, hashKey(p), key, value).Result()
}

func (s *RedisBackend) Delete(ctx context.Context, p Partition, key string) error {
	n, err := s.client.HDel(ctx, hashKey(p), key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisBackend) Pop(ctx context.Context, p Partition, key string) ([]byte, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, hashKey(p), key)
		pipe.HDel(ctx, hashKey(p), key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return get.Bytes()
}

func (s *RedisBackend) Items(ctx context.Context, p Partition) ([]Item, error) {
	all, err := s.client.HGetAll(ctx, hashKey(p)).Result()
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(all))
	for k, v := range all {
		items = append(items, Item{Key: k, Value: []byte(v)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (s *RedisBackend) Len(ctx context.Context, p Partition) (int, error) {
	n, err := s.client.HLen(ctx, hashKey(p)).Result()
	return int(n), err
}

func (s *RedisBackend) Clear(ctx context.Context, p Partition) error {
	return s.client.Del(ctx, hashKey(p)).Err()
}

// Apply wraps the batch in MULTI/EXEC.
func (s *RedisBackend) Apply(ctx context.Context, b *Batch) error {
	if err := b.Err(); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.Ops() {
			if op.Delete {
				pipe.HDel(ctx, hashKey(op.Partition), op.Key)
			} else {
				pipe.HSet(ctx, hashKey(op.Partition), op.Key, op.Value)
			}
		}
		return nil
	})
	return err
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisBackend) Close() error {
	return nil
}
