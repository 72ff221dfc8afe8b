package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，通过环境变量（或 .env）注入。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	LogLevel  string
	LogFormat string

	// 报表窗口使用的本地日历：时区与每周起始日（0=周日）
	Location  *time.Location
	WeekStart time.Weekday

	// 折扣超过行金额时拒绝下单，默认允许并如实记录负小计
	StrictDiscount bool

	// Redis 为空时关闭汇总缓存、幂等键与分布式限流
	RedisAddr       string
	RedisDB         int
	SummaryCacheTTL time.Duration
	IdempotencyTTL  time.Duration

	WriteRateLimit  int
	WriteRateWindow time.Duration

	// Kafka 为空时不外发订单事件
	KafkaBrokers []string
	KafkaTopic   string

	// Redis Stream outbox（写入后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// CSV 导出编码：utf-8 / utf-8-bom / gbk
	ExportCSVEncoding string
}

// RedisEnabled 是否配置了 Redis。
func (c AppConfig) RedisEnabled() bool { return c.RedisAddr != "" }

// EventsEnabled 是否外发订单事件（需要 Redis 与 Kafka）。
func (c AppConfig) EventsEnabled() bool { return c.RedisEnabled() && len(c.KafkaBrokers) > 0 }

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":10000"),
		DBPath:             getEnv("DB_PATH", "pos_report.db?_busy_timeout=5000"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		WeekStart:          time.Sunday,
		RedisAddr:          strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisDB:            0,
		SummaryCacheTTL:    5 * time.Minute,
		IdempotencyTTL:     24 * time.Hour,
		WriteRateLimit:     120,
		WriteRateWindow:    time.Minute,
		KafkaBrokers:       splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "pos-order-events"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "pos_report:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "pos-report-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "pos-report-relay-1"),
		ExportCSVEncoding:  strings.ToLower(getEnv("EXPORT_CSV_ENCODING", "utf-8-bom")),
	}

	loc, err := time.LoadLocation(getEnv("APP_TIMEZONE", "Local"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	weekStart, err := getEnvInt("WEEK_START", int(cfg.WeekStart))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WEEK_START: %w", err)
	}
	if weekStart < 0 || weekStart > 6 {
		return AppConfig{}, fmt.Errorf("WEEK_START must be in [0, 6]")
	}
	cfg.WeekStart = time.Weekday(weekStart)

	strict, err := getEnvBool("STRICT_DISCOUNT", false)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid STRICT_DISCOUNT: %w", err)
	}
	cfg.StrictDiscount = strict

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	cacheTTLSec, err := getEnvInt("SUMMARY_CACHE_TTL_SEC", int(cfg.SummaryCacheTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SUMMARY_CACHE_TTL_SEC: %w", err)
	}
	if cacheTTLSec <= 0 {
		return AppConfig{}, fmt.Errorf("SUMMARY_CACHE_TTL_SEC must be > 0")
	}
	cfg.SummaryCacheTTL = time.Duration(cacheTTLSec) * time.Second

	idemTTLHour, err := getEnvInt("IDEMPOTENCY_TTL_HOUR", int(cfg.IdempotencyTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid IDEMPOTENCY_TTL_HOUR: %w", err)
	}
	if idemTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("IDEMPOTENCY_TTL_HOUR must be > 0")
	}
	cfg.IdempotencyTTL = time.Duration(idemTTLHour) * time.Hour

	rateLimit, err := getEnvInt("WRITE_RATE_LIMIT", cfg.WriteRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_LIMIT must be > 0")
	}
	cfg.WriteRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("WRITE_RATE_WINDOW_SEC", int(cfg.WriteRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.WriteRateWindow = time.Duration(rateWindowSec) * time.Second

	switch cfg.ExportCSVEncoding {
	case "utf-8", "utf-8-bom", "gbk":
	default:
		return AppConfig{}, fmt.Errorf("EXPORT_CSV_ENCODING must be one of utf-8, utf-8-bom, gbk")
	}

	if len(cfg.KafkaBrokers) > 0 {
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.OrderEventStream == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
		}
		if cfg.OrderEventGroup == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
		}
		if cfg.OrderEventConsumer == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
		}
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
