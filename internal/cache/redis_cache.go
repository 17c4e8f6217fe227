package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisReportCache shares one client with the event bus and the job lock.
// namespace keeps several salons apart on one Redis.
type RedisReportCache struct {
	client    *redis.Client
	namespace string
}

func NewRedisReportCache(client *redis.Client, namespace string) *RedisReportCache {
	return &RedisReportCache{client: client, namespace: namespace}
}

func (c *RedisReportCache) key(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// versionKey sits outside the report: prefix so Flush's scan leaves it.
func (c *RedisReportCache) versionKey() string {
	return c.key("report-version")
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), payload, ttl).Err()
}

func (c *RedisReportCache) Version(ctx context.Context) (int64, error) {
	version, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// SetIfVersion watches the version key so an Invalidate from another
// instance between the check and the write aborts the write.
func (c *RedisReportCache) SetIfVersion(ctx context.Context, version int64, key string, value any, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return false, err
	}

	stored := false
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, c.versionKey()).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key(key), payload, ttl)
			return nil
		})
		stored = err == nil
		return err
	}, c.versionKey())
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return stored, err
}

func (c *RedisReportCache) Invalidate(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, c.key(key))
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey())
		if len(full) > 0 {
			pipe.Del(ctx, full...)
		}
		return nil
	})
	return err
}

// Flush bumps the version before deleting so a report computed earlier
// cannot be written back between the scan and the delete.
func (c *RedisReportCache) Flush(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.versionKey()).Err(); err != nil {
		return err
	}
	iter := c.client.Scan(ctx, 0, c.key(keyPrefix)+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}
