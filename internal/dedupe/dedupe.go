package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tradepost:webhook:payment"

// Open connects to the redis instance at url and checks it answers.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Guard drops repeated payment notifications. Keys expire after ttl so the
// store does not grow without bound.
type Guard struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func New(rdb redis.Cmdable, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

// FirstSeen marks (paymentID, status) as processed and reports whether this
// call was the first to do so. A nil Guard lets every notification through.
func (g *Guard) FirstSeen(ctx context.Context, paymentID, status string) (bool, error) {
	if g == nil || g.rdb == nil {
		return true, nil
	}
	key, err := processedKey(paymentID, status)
	if err != nil {
		return false, err
	}
	return g.rdb.SetNX(ctx, key, "1", g.ttl).Result()
}

// Forget releases a mark so a provider retry is processed again.
func (g *Guard) Forget(ctx context.Context, paymentID, status string) error {
	if g == nil || g.rdb == nil {
		return nil
	}
	key, err := processedKey(paymentID, status)
	if err != nil {
		return err
	}
	return g.rdb.Del(ctx, key).Err()
}

func processedKey(paymentID, status string) (string, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return "", errors.New("payment id is required")
	}
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, paymentID, status), nil
}
