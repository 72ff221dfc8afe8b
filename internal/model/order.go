package model

import (
	"time"

	"pos_report/internal/money"
)

// Order 订单头。CreatedAt 由服务端在创建时以 UTC 赋值，之后不再修改。
type Order struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
	PlatformID *uint     `gorm:"index" json:"platform_id"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Order) TableName() string { return "orders" }

// OrderItem 订单行。ProductName / UnitPrice 是下单时的快照，
// 展示与统计一律以快照为准，不回查商品目录。
type OrderItem struct {
	ID        uint  `gorm:"primarykey" json:"id"`
	OrderID   uint  `gorm:"not null;index" json:"order_id"`
	ProductID *uint `gorm:"index" json:"product_id"`

	ProductName string       `gorm:"size:128;not null" json:"product_name"`
	UnitPrice   money.Amount `gorm:"not null" json:"unit_price"`
	Quantity    int          `gorm:"not null" json:"quantity"`
	Discount    money.Amount `gorm:"not null;default:0" json:"discount"`
	Subtotal    money.Amount `gorm:"not null" json:"subtotal"` // 创建或更正时由 money.Subtotal 计算后落库
}

func (OrderItem) TableName() string { return "order_items" }

// Recalculate 按当前单价、数量、折扣重算小计。
func (it *OrderItem) Recalculate() {
	it.Subtotal = money.Subtotal(it.UnitPrice, it.Quantity, it.Discount)
}
