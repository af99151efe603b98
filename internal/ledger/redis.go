package ledger

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis is a Ledger backed by a Redis set, shared between a publisher
// process and a separate subscriber process.
type Redis struct {
	client *redis.Client
	key    string
	owned  bool
}

// NewRedis wraps an existing client. The caller owns the client.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// DialRedis connects to addr and pings it.
func DialRedis(ctx context.Context, addr, key string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ledger: redis ping %s: %w", addr, err)
	}
	r := NewRedis(client, key)
	r.owned = true
	return r, nil
}

func (r *Redis) Record(ctx context.Context, id int) (bool, error) {
	n, err := r.client.SAdd(ctx, r.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("ledger: sadd: %w", err)
	}
	return n == 1, nil
}

func (r *Redis) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: scard: %w", err)
	}
	return int(n), nil
}

func (r *Redis) IDs(ctx context.Context) ([]int, error) {
	members, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: smembers: %w", err)
	}
	out := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// Reset deletes the set.
func (r *Redis) Reset(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *Redis) Close() error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
