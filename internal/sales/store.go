package sales

import (
	"context"
	"time"

	"pos_report/internal/model"
	"pos_report/internal/money"
)

// OrderFilter 订单头查询条件，时间区间为 [From, Until)，零值表示不限。
// IDs 非 nil 时只返回这些订单；空切片返回空结果。
type OrderFilter struct {
	From  time.Time
	Until time.Time
	IDs   []uint
}

// Store 是引擎依赖的存储协作方。实现需保证 CreateOrder 原子：
// 订单头与全部订单项要么一起可见，要么都不可见。
// 找不到记录时返回包装了 ErrNotFound 的错误。
type Store interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id uint) (model.Product, error)
	UpsertProduct(ctx context.Context, name string, price money.Amount) (model.Product, error)
	DeleteProduct(ctx context.Context, id uint) error

	ListPlatforms(ctx context.Context) ([]model.Platform, error)
	GetPlatform(ctx context.Context, id uint) (model.Platform, error)
	UpsertPlatform(ctx context.Context, name string) (model.Platform, error)
	DeletePlatform(ctx context.Context, id uint) error

	CreateOrder(ctx context.Context, platformID *uint, createdAt time.Time, items []model.OrderItem) (uint, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error)
	ListItems(ctx context.Context, orderIDs []uint) ([]model.OrderItem, error)
	UpdateItem(ctx context.Context, orderID, itemID uint, quantity int, discount money.Amount) (model.OrderItem, error)

	// Snapshot 在同一个只读视图内执行 fn，fn 内的读取不会混入并发写入。
	Snapshot(ctx context.Context, fn func(Store) error) error
}
