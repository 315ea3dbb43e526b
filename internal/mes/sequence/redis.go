package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// nextScript 原子地执行 max(cur, floor)+1
var nextScript = redis.NewScript(`
local cur = tonumber(redis.call("get", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if cur < floor then cur = floor end
cur = cur + 1
redis.call("set", KEYS[1], cur)
return cur
`)

// RedisAllocator 基于 Redis 的分配器
type RedisAllocator struct {
	client  redis.Scripter
	prefix  string
	timeout time.Duration
}

// NewRedisAllocator prefix 为键前缀，如 "mes:seq:"
func NewRedisAllocator(client redis.Scripter, prefix string) *RedisAllocator {
	return &RedisAllocator{client: client, prefix: prefix, timeout: 3 * time.Second}
}

func (a *RedisAllocator) Next(ctx context.Context, key string, floor int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	v, err := nextScript.Run(ctx, a.client, []string{a.prefix + key}, floor).Int64()
	if err != nil {
		return 0, fmt.Errorf("分配流水号 %s 失败: %w", key, err)
	}
	return v, nil
}
