package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// SummaryCache 基于 Redis 的汇总缓存，键中带数据版本号，写入后整体失效。
type SummaryCache struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewSummaryCache(rdb *rd.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{rdb: rdb, ttl: ttl}
}

// Version 读取当前数据版本，key 不存在视为 0。
func (c *SummaryCache) Version(ctx context.Context) (int64, error) {
	v, err := c.rdb.Get(ctx, DataVersionKey()).Int64()
	if errors.Is(err, rd.Nil) {
		return 0, nil
	}
	return v, err
}

// Get found=false 表示未命中。
func (c *SummaryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, SummaryKey(key)).Bytes()
	if errors.Is(err, rd.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *SummaryCache) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, SummaryKey(key), value, c.ttl).Err()
}

// Bump 自增数据版本，旧版本下的缓存不再被读取，随 TTL 过期。
func (c *SummaryCache) Bump(ctx context.Context) error {
	return c.rdb.Incr(ctx, DataVersionKey()).Err()
}
