package redis

import "fmt"

const keyPrefix = "pos_report"

// DataVersionKey 全局数据版本号，每次订单写入后自增，用于汇总缓存失效。
func DataVersionKey() string {
	return keyPrefix + ":data:version"
}

// SummaryKey 汇总缓存键，part 由调用方给出（窗口类型、起止时刻与数据版本）。
func SummaryKey(part string) string {
	return fmt.Sprintf("%s:%s", keyPrefix, part)
}

// IdempotencyKey 将客户端 Idempotency-Key 映射到订单 ID。
func IdempotencyKey(idemKey string) string {
	return fmt.Sprintf("%s:idem:order:%s", keyPrefix, idemKey)
}

// RateLimitKey 写接口限流键。
func RateLimitKey(scope, client string) string {
	return fmt.Sprintf("%s:rate_limit:%s:%s", keyPrefix, scope, client)
}
