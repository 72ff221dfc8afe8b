package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos_report/internal/config"
	"pos_report/internal/logger"
	"pos_report/internal/middleware"
	"pos_report/internal/queue"
	"pos_report/internal/router"
	"pos_report/internal/sales"
	"pos_report/internal/store"
	rediskey "pos_report/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog, err := logger.New(logger.Config{
		ServiceName: "pos-report",
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		zlog.Fatal("db open", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	if err := store.AutoMigrate(db); err != nil {
		zlog.Fatal("db migrate", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := sales.Params{
		Store:          store.NewGormStore(db),
		Log:            zlog,
		Calendar:       sales.Calendar{Location: cfg.Location, WeekStart: cfg.WeekStart},
		StrictDiscount: cfg.StrictDiscount,
	}
	deps := router.Deps{Log: zlog, Cfg: cfg}

	// 2. Redis：汇总缓存、幂等键、写接口限流
	var rdb *rd.Client
	if cfg.RedisEnabled() {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Redis 不可用不阻止启动，缓存读写失败会降级为直接计算
			zlog.Warn("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		params.Cache = rediskey.NewSummaryCache(rdb, cfg.SummaryCacheTTL)
		deps.Idempotency = rediskey.NewIdempotency(rdb, cfg.IdempotencyTTL)
	}
	deps.WriteLimiter = middleware.NewRateLimiter(rdb, "orders", cfg.WriteRateLimit, cfg.WriteRateWindow)

	// 3. 订单事件：写入 Redis Stream，Relay 异步转发 Kafka
	if cfg.EventsEnabled() {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = producer.Close() }()
		params.Notifier = queue.NewOutbox(rdb, cfg.OrderEventStream)

		relay := queue.NewRelay(rdb, producer, zlog, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)
		go relay.Run(ctx)
		zlog.Info("order events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	deps.Engine = sales.NewEngine(params)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.GinMiddleware(zlog), gin.Recovery())
	router.Setup(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zlog.Info("http server start",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("timezone", cfg.Location.String()),
			zap.Bool("redis", cfg.RedisEnabled()),
			zap.Bool("strict_discount", cfg.StrictDiscount),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http server shutdown", zap.Error(err))
	}
	zlog.Info("http server stopped")
}
