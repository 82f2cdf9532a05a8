/**
 * @description
 * Daily attempt counting for checkout session creation. Counting lives
 * behind an injected abstraction backed by Redis so the limit holds across
 * service instances and can be stubbed out in tests.
 */
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptCounter tracks per-subject daily attempt counts.
type AttemptCounter interface {
	// Consume records one attempt for the subject on the current day and
	// reports whether the subject is still within the limit.
	Consume(ctx context.Context, subject string, limit int) (count int, allowed bool, err error)
}

var dailyCounterScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisAttemptCounter implements AttemptCounter on a shared Redis instance.
type RedisAttemptCounter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisAttemptCounter creates a counter. Keys expire at the end of the
// UTC day they were created in.
func NewRedisAttemptCounter(client redis.UniversalClient, prefix string) *RedisAttemptCounter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "checkout:attempts"
	}
	return &RedisAttemptCounter{client: client, prefix: trimmed, now: time.Now}
}

func (c *RedisAttemptCounter) Consume(ctx context.Context, subject string, limit int) (int, bool, error) {
	if c == nil || c.client == nil || limit <= 0 {
		return 0, true, nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return 0, true, nil
	}

	now := c.now().UTC()
	day := now.Format("2006-01-02")
	endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	ttlMs := endOfDay.Sub(now).Milliseconds()
	if ttlMs < 1000 {
		ttlMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", c.prefix, subject, day)
	raw, err := dailyCounterScript.Run(ctx, c.client, []string{key}, ttlMs).Result()
	if err != nil {
		return 0, false, fmt.Errorf("daily counter script failed: %w", err)
	}

	count, ok := raw.(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected counter response type: %T", raw)
	}
	return int(count), count <= int64(limit), nil
}

// NoopAttemptCounter allows the service to run without Redis configured.
type NoopAttemptCounter struct{}

func (NoopAttemptCounter) Consume(ctx context.Context, subject string, limit int) (int, bool, error) {
	return 0, true, nil
}
