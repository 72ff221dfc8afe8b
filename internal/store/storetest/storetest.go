// Package storetest 提供基于内存 SQLite 的测试库。
package storetest

import (
	"fmt"
	"testing"

	"pos_report/internal/store"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DB 每次调用返回一个独立的内存库，已完成建表。
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	// 内存库在共享缓存模式下单连接最稳定
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.AutoMigrate(db); err != nil {
		tb.Fatalf("auto migrate: %v", err)
	}
	return db
}

// Store 返回绑定到独立内存库的 GormStore。
func Store(tb testing.TB) *store.GormStore {
	tb.Helper()
	return store.NewGormStore(DB(tb))
}
