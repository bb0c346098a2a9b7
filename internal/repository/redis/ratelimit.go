package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sliding window over an ordered set: one member per scan attempt, scored by
// arrival time. Returns {allowed, count, retry_ms}.
// KEYS[1] = key
// ARGV[1] = now_ms
// ARGV[2] = window_ms
// ARGV[3] = limit
// ARGV[4] = member (unique per attempt)
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, 'NX', now, member)
local count = redis.call('ZCARD', key)
redis.call('PEXPIRE', key, window)

if count > limit then
  local earliest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local earliestScore = tonumber(earliest[2]) or (now - window)
  local retry_ms = window - (now - earliestScore)
  if retry_ms < 0 then retry_ms = 0 end
  return {0, count, retry_ms}
end
return {1, count, 0}
`

// Decision is the limiter's verdict for one scan attempt.
type Decision struct {
	Allowed bool
	// Count is the number of attempts inside the current window, this one
	// included.
	Count int64
	// RetryAfter is how long the scanner should wait before the window has
	// room again. Zero when Allowed.
	RetryAfter time.Duration
}

// SlidingWindowLimiter bounds how fast a single scanner station can fire
// redemption attempts. It protects the ticket store from a misbehaving
// scanner loop, not from legitimate contention.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	script *redis.Script
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	prefix string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		script: redis.NewScript(slidingWindowScript),
	}
}

func (l *SlidingWindowLimiter) key(scanner string) string {
	return fmt.Sprintf("%s:%s", l.prefix, scanner)
}

// Allow records one attempt for the scanner and reports whether it fits in
// the window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, scanner string) (Decision, error) {
	res, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{l.key(scanner)},
		time.Now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		attemptMember(),
	).Result()
	if err != nil {
		return Decision{}, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 3 {
		return Decision{}, fmt.Errorf("bad script result: %v", res)
	}

	return Decision{
		Allowed:    scriptInt(arr[0]) == 1,
		Count:      scriptInt(arr[1]),
		RetryAfter: time.Duration(scriptInt(arr[2])) * time.Millisecond,
	}, nil
}

// scriptInt normalizes the numeric shapes go-redis hands back for Lua
// return values.
func scriptInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		var x int64
		fmt.Sscan(t, &x)
		return x
	default:
		return 0
	}
}

func attemptMember() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
