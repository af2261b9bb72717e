package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	valueProcessing = "processing"
	valueDone       = "done"
)

// RedisTracker shares delivery state between replicas through Redis
type RedisTracker struct {
	redis    *redis.Client
	claimTTL time.Duration
	doneTTL  time.Duration
}

// NewRedisTracker connects to redisURL and verifies the connection
func NewRedisTracker(redisURL string, claimTTL, doneTTL time.Duration) (*RedisTracker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	claimTTL, doneTTL = ttls(claimTTL, doneTTL)
	return &RedisTracker{redis: client, claimTTL: claimTTL, doneTTL: doneTTL}, nil
}

func (t *RedisTracker) Close() error { return t.redis.Close() }

// Claim takes ownership of the delivery unless it is processing or done
func (t *RedisTracker) Claim(ctx context.Context, source, id string) (State, error) {
	k := key(source, id)
	ok, err := t.redis.SetNX(ctx, k, valueProcessing, t.claimTTL).Result()
	if err != nil {
		return Claimed, fmt.Errorf("claim delivery: %w", err)
	}
	if ok {
		return Claimed, nil
	}
	v, err := t.redis.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET; try once more
		ok, err = t.redis.SetNX(ctx, k, valueProcessing, t.claimTTL).Result()
		if err != nil {
			return Claimed, fmt.Errorf("claim delivery: %w", err)
		}
		if ok {
			return Claimed, nil
		}
		return InFlight, nil
	case err != nil:
		return Claimed, fmt.Errorf("read delivery: %w", err)
	case v == valueDone:
		return Done, nil
	default:
		return InFlight, nil
	}
}

// Complete marks the delivery as applied for the done TTL
func (t *RedisTracker) Complete(ctx context.Context, source, id string) error {
	if err := t.redis.Set(ctx, key(source, id), valueDone, t.doneTTL).Err(); err != nil {
		return fmt.Errorf("complete delivery: %w", err)
	}
	return nil
}

// Release drops a claim so that a retry can process the delivery again
func (t *RedisTracker) Release(ctx context.Context, source, id string) error {
	if err := t.redis.Del(ctx, key(source, id)).Err(); err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}
	return nil
}
