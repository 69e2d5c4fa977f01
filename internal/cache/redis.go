package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tombstone is published on a key's change channel when the key is removed,
// so OnChange waiters wake on deletion as well as on writes.
const tombstone = "\x00removed"

// Redis is the distributed Cache used when more than one gateway instance
// participates. Change notification rides a per-key pub/sub channel written
// by Set and Remove; TTLs are native Redis expirations.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func redisKey(namespace, key string) string {
	return namespace + ":" + key
}

func changeChannel(k string) string {
	return k + ":changes"
}

func (r *Redis) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, redisKey(namespace, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, namespace, key, value string, ttl time.Duration) error {
	k := redisKey(namespace, key)
	if err := r.client.Set(ctx, k, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	if err := r.client.Publish(ctx, changeChannel(k), value).Err(); err != nil {
		return fmt.Errorf("cache notify: %w", err)
	}
	return nil
}

func (r *Redis) SetIfNotExist(ctx context.Context, namespace, key, value string, ttl time.Duration) (bool, error) {
	k := redisKey(namespace, key)
	set, err := r.client.SetNX(ctx, k, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache setnx: %w", err)
	}
	if set {
		if err := r.client.Publish(ctx, changeChannel(k), value).Err(); err != nil {
			return set, fmt.Errorf("cache notify: %w", err)
		}
	}
	return set, nil
}

func (r *Redis) Remove(ctx context.Context, namespace, key string) (bool, error) {
	k := redisKey(namespace, key)
	removed, err := r.client.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("cache del: %w", err)
	}
	if removed > 0 {
		if err := r.client.Publish(ctx, changeChannel(k), tombstone).Err(); err != nil {
			return true, fmt.Errorf("cache notify: %w", err)
		}
	}
	return removed > 0, nil
}

func (r *Redis) Exists(ctx context.Context, namespace, key string) (bool, error) {
	count, err := r.client.Exists(ctx, redisKey(namespace, key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists: %w", err)
	}
	return count > 0, nil
}

func (r *Redis) OnChange(ctx context.Context, namespace, key string, wait time.Duration) (string, bool, error) {
	k := redisKey(namespace, key)
	sub := r.client.Subscribe(ctx, changeChannel(k))
	defer func() {
		_ = sub.Close()
	}()

	// Force the subscription to be established before we wait, otherwise a
	// change arriving between Subscribe and Receive is lost.
	if _, err := sub.Receive(ctx); err != nil {
		return "", false, fmt.Errorf("cache subscribe: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	select {
	case msg := <-sub.Channel():
		if msg.Payload == tombstone {
			return "", false, nil
		}
		return msg.Payload, true, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		// Timed out: resolve with the current value, absent included.
		return r.Get(ctx, namespace, key)
	}
}
