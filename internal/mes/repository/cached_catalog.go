package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ItemSource 物料来源（数据库或 ERPNext）
type ItemSource interface {
	GetItem(ctx context.Context, code string) (*entity.Item, error)
}

// CachedCatalog 在物料来源前加一层 Redis 读缓存
// 缓存故障只记录日志，回落到来源查询
type CachedCatalog struct {
	next   ItemSource
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedCatalog(next ItemSource, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalog{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func itemCacheKey(code string) string {
	return "mes:item:" + code
}

func (c *CachedCatalog) GetItem(ctx context.Context, code string) (*entity.Item, error) {
	cacheKey := itemCacheKey(code)
	if cached, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
		var it entity.Item
		if json.Unmarshal(cached, &it) == nil {
			return &it, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("读取物料缓存失败", zap.String("item_code", code), zap.Error(err))
	}

	it, err := c.next.GetItem(ctx, code)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(it); err == nil {
		if err := c.rdb.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
			c.logger.Warn("写入物料缓存失败", zap.String("item_code", code), zap.Error(err))
		}
	}
	return it, nil
}

// Invalidate 物料更新后清除缓存
func (c *CachedCatalog) Invalidate(ctx context.Context, code string) {
	if err := c.rdb.Del(ctx, itemCacheKey(code)).Err(); err != nil {
		c.logger.Warn("清除物料缓存失败", zap.String("item_code", code), zap.Error(err))
	}
}
