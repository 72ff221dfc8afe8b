package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	rediskey "pos_report/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// luaRateLimit：Redis 滑动窗口限流 Lua 脚本（原子操作）
// KEYS[1]=限流key，ARGV[1]=当前时间戳(ms)，ARGV[2]=窗口开始时间戳(ms)，ARGV[3]=窗口秒数，
// ARGV[4]=本次请求成员，ARGV[5]=窗口内上限
// 返回：当前窗口内的请求数（超限返回 -1）
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

-- 删除窗口外的旧记录
redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// maxLocalClients 进程内令牌桶最多保留的客户端数。
const maxLocalClients = 10000

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 按客户端 IP 限制写接口频率。
// rdb 为空或 Redis 出错时退化为进程内令牌桶。
type RateLimiter struct {
	rdb    *rd.Client
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	local map[string]*localEntry
}

func NewRateLimiter(rdb *rd.Client, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		now:    time.Now,
		local:  make(map[string]*localEntry),
	}
}

// Handler 返回 gin 中间件。
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()
		if !l.allow(c, client) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": 429,
				"msg":  "too many requests, retry later",
			})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(c *gin.Context, client string) bool {
	if l.rdb != nil {
		now := time.Now()
		nowMs := now.UnixMilli()
		windowStart := nowMs - l.window.Milliseconds()
		windowSec := int64(l.window / time.Second)
		if windowSec <= 0 {
			windowSec = 1
		}
		member := fmt.Sprintf("%d-%d", nowMs, now.UnixNano())

		res, err := l.rdb.Eval(c.Request.Context(), luaRateLimit,
			[]string{rediskey.RateLimitKey(l.scope, client)},
			nowMs, windowStart, windowSec, member, l.limit).Int()
		if err == nil {
			return res >= 0
		}
		// Redis 出错时走本地令牌桶（降级策略）
	}
	return l.localLimiter(client).Allow()
}

func (l *RateLimiter) localLimiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.local[client]; ok {
		e.lastSeen = now
		return e.lim
	}
	if len(l.local) >= maxLocalClients {
		l.evictLocked(now)
	}
	every := l.window / time.Duration(l.limit)
	e := &localEntry{lim: rate.NewLimiter(rate.Every(every), l.limit), lastSeen: now}
	l.local[client] = e
	return e.lim
}

// evictLocked 清理空闲超过一个窗口的客户端（此时令牌桶已回满，丢弃与新建等价）；
// 仍然满时淘汰最久未访问的一个。调用方持有 mu。
func (l *RateLimiter) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range l.local {
		if now.Sub(e.lastSeen) >= l.window {
			delete(l.local, k)
			continue
		}
		if oldestKey == "" || e.lastSeen.Before(oldest) {
			oldestKey, oldest = k, e.lastSeen
		}
	}
	if len(l.local) >= maxLocalClients && oldestKey != "" {
		delete(l.local, oldestKey)
	}
}
