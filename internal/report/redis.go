package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "rice:eval:history:"

// RedisHistory stores reports in one sorted set per model, scored by
// creation time.
type RedisHistory struct {
	client *redis.Client
	prefix string
}

// NewRedisHistory connects to url and verifies the connection.
func NewRedisHistory(url string) (*RedisHistory, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisHistory{client: client, prefix: redisPrefix}, nil
}

// Save adds a summary of r to the model's sorted set.
func (h *RedisHistory) Save(ctx context.Context, r *ModelReport) error {
	member, err := json.Marshal(r.Summary())
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	err = h.client.ZAdd(ctx, h.prefix+r.Model, redis.Z{
		Score:  float64(r.CreatedAt.UnixNano()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return nil
}

// List returns matching reports, newest first.
func (h *RedisHistory) List(ctx context.Context, f Filter) ([]*ModelReport, error) {
	keys := []string{h.prefix + f.Model}
	if f.Model == "" {
		var err error
		keys, err = h.client.Keys(ctx, h.prefix+"*").Result()
		if err != nil {
			return nil, fmt.Errorf("listing models: %w", err)
		}
	}

	stop := int64(-1)
	if f.Limit > 0 {
		stop = int64(f.Limit - 1)
	}

	var out []*ModelReport
	for _, key := range keys {
		members, err := h.client.ZRevRange(ctx, key, 0, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		for _, m := range members {
			var r ModelReport
			if err := json.Unmarshal([]byte(m), &r); err != nil {
				// Skip invalid entries
				continue
			}
			out = append(out, &r)
		}
	}

	sortNewestFirst(out)
	return limit(out, f.Limit), nil
}

// Delete removes all history for model.
func (h *RedisHistory) Delete(ctx context.Context, model string) error {
	if err := h.client.Del(ctx, h.prefix+model).Err(); err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (h *RedisHistory) Close() error {
	return h.client.Close()
}
