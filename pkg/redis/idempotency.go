package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const idemPending = "pending"

// luaClaimIdempotency：SET NX 抢占幂等键。
// 返回 1 表示抢占成功；否则返回键上已有的值（pending 或订单 ID）。
const luaClaimIdempotency = `
local key = KEYS[1]
local ttlSec = tonumber(ARGV[1])
if redis.call('SET', key, 'pending', 'NX', 'EX', ttlSec) then
  return 1
end
return redis.call('GET', key)
`

// luaReleaseIfPending 仅当键仍是 pending 时才删除，避免误删已完成的结果。
const luaReleaseIfPending = `
local key = KEYS[1]
if redis.call('GET', key) == 'pending' then
  return redis.call('DEL', key)
end
return 0
`

// ClaimState 抢占幂等键的结果。
type ClaimState int

const (
	ClaimAcquired   ClaimState = iota // 首次请求，调用方继续创建订单
	ClaimInProgress                   // 同一个键的请求正在处理
	ClaimDone                         // 已创建，OrderID 有效
)

// Idempotency 订单创建幂等键。
type Idempotency struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewIdempotency(rdb *rd.Client, ttl time.Duration) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: ttl}
}

// Claim 抢占幂等键。
func (i *Idempotency) Claim(ctx context.Context, idemKey string) (ClaimState, uint, error) {
	ttlSec := int64(i.ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	res, err := i.rdb.Eval(ctx, luaClaimIdempotency, []string{IdempotencyKey(idemKey)}, ttlSec).Result()
	if err != nil && !errors.Is(err, rd.Nil) {
		return 0, 0, err
	}
	switch v := res.(type) {
	case int64:
		if v == 1 {
			return ClaimAcquired, 0, nil
		}
	case string:
		if v == idemPending {
			return ClaimInProgress, 0, nil
		}
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, 0, err
		}
		return ClaimDone, uint(id), nil
	}
	// 键在抢占与读取之间过期，按进行中处理，由客户端重试
	return ClaimInProgress, 0, nil
}

// Complete 记录幂等键对应的订单 ID。
func (i *Idempotency) Complete(ctx context.Context, idemKey string, orderID uint) error {
	return i.rdb.Set(ctx, IdempotencyKey(idemKey), strconv.FormatUint(uint64(orderID), 10), i.ttl).Err()
}

// Release 创建失败时释放幂等键，允许客户端用同一个键重试。
func (i *Idempotency) Release(ctx context.Context, idemKey string) error {
	_, err := i.rdb.Eval(ctx, luaReleaseIfPending, []string{IdempotencyKey(idemKey)}).Int()
	return err
}
